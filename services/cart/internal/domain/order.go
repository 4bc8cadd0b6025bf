package domain

import "time"

// Order is the immutable record of a settled checkout: the priced lines the
// payment was captured for, frozen at settlement. Its ID is the attempt ID,
// so writing it again for the same attempt is a no-op.
type Order struct {
	ID            string      `json:"id"`
	CartID        string      `json:"cart_id"`
	PaymentRef    string      `json:"payment_ref"`
	AttachmentRef *string     `json:"attachment_ref,omitempty"`
	Items         []OrderItem `json:"items"`
	TotalAmount   int64       `json:"total_amount"`
	Currency      string      `json:"currency"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderItem is a cart line as it was when the order was placed.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns the price of the line in minor units.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// NewOrder snapshots the settled cart for the attempt that settled it.
func NewOrder(a *Attempt, cart *Cart, now time.Time) *Order {
	items := make([]OrderItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	o := &Order{
		ID:            a.ID,
		CartID:        a.CartID,
		AttachmentRef: a.AttachmentRef,
		Items:         items,
		TotalAmount:   cart.TotalAmount(),
		Currency:      cart.Currency,
		CreatedAt:     now,
	}
	if a.PaymentRef != nil {
		o.PaymentRef = *a.PaymentRef
	}
	return o
}
