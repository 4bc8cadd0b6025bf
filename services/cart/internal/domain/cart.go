package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

// A failed checkout hands the cart back as OPEN, so the orchestrator never
// writes CartFailed or CartVoided. They are reserved for operators closing
// out a cart by hand and are treated like any other non-open status.
const (
	CartOpen               CartStatus = "OPEN"
	CartCheckoutInProgress CartStatus = "CHECKOUT_IN_PROGRESS"
	CartSettled            CartStatus = "SETTLED"
	CartFailed             CartStatus = "FAILED"
	CartVoided             CartStatus = "VOIDED"
)

// Cart represents a shopping cart. Version is the optimistic concurrency
// token and increases by one on every successful write. CheckoutAttemptID
// names the attempt holding the checkout lock, and after settlement the
// attempt that settled the cart.
type Cart struct {
	ID                string     `json:"id"`
	Items             []CartItem `json:"items"`
	Currency          string     `json:"currency"`
	Status            CartStatus `json:"status"`
	Version           int64      `json:"version"`
	AttachmentRef     *string    `json:"attachment_ref,omitempty"`
	CheckoutAttemptID *string    `json:"checkout_attempt_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CartItem represents a single line in the cart.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// TotalAmount calculates the total price of all items in minor units.
func (c *Cart) TotalAmount() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItemIndex returns the index of the line for productID, or -1.
func (c *Cart) FindItemIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// IsOpen reports whether the cart still accepts edits and checkouts.
func (c *Cart) IsOpen() bool {
	return c.Status == CartOpen
}

// LockedBy reports whether attemptID holds the checkout lock.
func (c *Cart) LockedBy(attemptID string) bool {
	return c.Status == CartCheckoutInProgress && c.CheckoutAttemptID != nil && *c.CheckoutAttemptID == attemptID
}

// SettledBy reports whether attemptID wrote the cart's settlement.
func (c *Cart) SettledBy(attemptID string) bool {
	return c.Status == CartSettled && c.CheckoutAttemptID != nil && *c.CheckoutAttemptID == attemptID
}

// Fingerprint digests the priced lines (product, quantity, unit price) in
// product order. Two carts with the same fingerprint charge for the same goods.
func (c *Cart) Fingerprint() string {
	lines := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, it.ProductID+"\x1f"+strconv.Itoa(it.Quantity)+"\x1f"+strconv.FormatInt(it.UnitPrice, 10))
	}
	slices.Sort(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy so a CAS mutation cannot leak into the caller's value.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartItem(nil), c.Items...)
	if c.AttachmentRef != nil {
		ref := *c.AttachmentRef
		cp.AttachmentRef = &ref
	}
	if c.CheckoutAttemptID != nil {
		id := *c.CheckoutAttemptID
		cp.CheckoutAttemptID = &id
	}
	return &cp
}
