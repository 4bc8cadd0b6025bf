package client

// AuthorizeStatus is the outcome of an authorization call.
type AuthorizeStatus string

const (
	Authorized         AuthorizeStatus = "AUTHORIZED"
	Declined           AuthorizeStatus = "DECLINED"
	AuthorizeTransient AuthorizeStatus = "TRANSIENT_FAILURE"
)

// AuthorizeResult carries the payment reference on success and the reason
// otherwise.
type AuthorizeResult struct {
	Status AuthorizeStatus
	Ref    string
	Reason string
}

// CaptureStatus is the outcome of a capture call.
type CaptureStatus string

const (
	Captured         CaptureStatus = "CAPTURED"
	CaptureFailed    CaptureStatus = "CAPTURE_FAILED"
	CaptureTransient CaptureStatus = "TRANSIENT_FAILURE"
)

// CaptureResult is the outcome of Capture.
type CaptureResult struct {
	Status CaptureStatus
	Reason string
}

// VoidStatus is the outcome of a void call. VoidRejected means the payment
// service refused, typically because the funds were already captured.
type VoidStatus string

const (
	Voided        VoidStatus = "VOIDED"
	VoidTransient VoidStatus = "TRANSIENT_FAILURE"
	VoidRejected  VoidStatus = "VOID_REJECTED"
)

// VoidResult is the outcome of Void.
type VoidResult struct {
	Status VoidStatus
	Reason string
}

// LookupStatus is the outcome of a lookup by reference.
type LookupStatus string

const (
	Found           LookupStatus = "FOUND"
	NotFound        LookupStatus = "NOT_FOUND"
	LookupTransient LookupStatus = "TRANSIENT_FAILURE"
)

// LookupResult carries the payment a reference resolved to. Payment is set
// only when Status is Found.
type LookupResult struct {
	Status  LookupStatus
	Payment Payment
	Reason  string
}
