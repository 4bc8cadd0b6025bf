package service

import (
	"context"

	mediaclient "github.com/utafrali/CommerceCheckout/services/media/client"
	paymentclient "github.com/utafrali/CommerceCheckout/services/payment/client"
)

// PaymentGateway is the part of the payment client the orchestrator uses.
// Implementations must not retry; the orchestrator owns the retry policy.
type PaymentGateway interface {
	Authorize(ctx context.Context, req paymentclient.AuthorizeRequest) paymentclient.AuthorizeResult
	Capture(ctx context.Context, ref string) paymentclient.CaptureResult
	Void(ctx context.Context, ref string) paymentclient.VoidResult
	// Lookup finds the hold an ambiguous authorize may have left behind.
	Lookup(ctx context.Context, reference string) paymentclient.LookupResult
	Balance(ctx context.Context) (int64, error)
}

// AttachmentStore persists checkout attachments.
type AttachmentStore interface {
	Store(ctx context.Context, data []byte, declaredName string) (*mediaclient.MediaReference, error)
}

var (
	_ PaymentGateway  = (*paymentclient.Client)(nil)
	_ AttachmentStore = (*mediaclient.Client)(nil)
)
