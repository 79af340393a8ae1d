package models

import "time"

// InvoiceType selects what fulfillment a paid invoice triggers.
type InvoiceType string

const (
	InvoiceTypeEnergy InvoiceType = "energy"
	InvoiceTypeGolden InvoiceType = "golden"
)

// InvoiceStatus mirrors the gateway states we care about. The gateway may
// report other states; those are carried through verbatim.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusExpired InvoiceStatus = "expired"
)

// Invoice tracks one payment-gateway charge. InvoiceID is the gateway's id
// and doubles as the primary key. Exactly one of EnergyAmount/GoldenHours is
// set, per Type. Fulfilled guards against crediting the same invoice twice.
type Invoice struct {
	InvoiceID    int64         `json:"invoice_id"`
	UserID       int64         `json:"user_id"`
	Type         InvoiceType   `json:"invoice_type"`
	Amount       float64       `json:"amount"`
	Asset        string        `json:"asset"`
	PayURL       string        `json:"pay_url"`
	Price        float64       `json:"price"`
	Status       InvoiceStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	PaidAt       time.Time     `json:"paid_at,omitempty"`
	Payload      string        `json:"payload,omitempty"`
	EnergyAmount int           `json:"energy_amount,omitempty"`
	GoldenHours  int           `json:"golden_hours,omitempty"`
	Fulfilled    bool          `json:"fulfilled"`
}

func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}
