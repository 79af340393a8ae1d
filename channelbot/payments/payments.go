// Package payments defines the payment-gateway capability the economy core
// depends on, plus the Crypto Pay client that implements it. The core never
// calls the gateway while holding its lock; billing flows invoke it first
// and record the result afterwards.
package payments

import (
	"context"
	"fmt"
)

// Gateway statuses the billing flow branches on; anything else is carried
// through verbatim.
const (
	StatusActive = "active"
	StatusPaid   = "paid"
)

// GatewayInvoice is the gateway's view of a charge.
type GatewayInvoice struct {
	ID          int64
	PayURL      string
	Amount      float64
	Asset       string
	Status      string
	Description string
	Payload     string
}

// CreateInvoiceRequest describes a charge to open with the gateway.
type CreateInvoiceRequest struct {
	Amount      float64
	Asset       string
	Description string
	Payload     string
}

// Gateway is the external payment capability. Implementations fail with
// *GatewayError; any such failure is recoverable and the local invoice stays
// pending.
type Gateway interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*GatewayInvoice, error)
	GetInvoice(ctx context.Context, invoiceID int64) (*GatewayInvoice, error)
}

// GatewayError wraps any failure talking to the payment gateway.
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway: %s: %v", e.Message, e.Err)
	}
	return "payment gateway: " + e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
