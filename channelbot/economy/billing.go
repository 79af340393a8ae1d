package economy

import (
	"context"
	"fmt"
	"time"

	"github.com/channeladmin/channelbot/channelbot/database/models"
	"github.com/channeladmin/channelbot/channelbot/payments"
)

// Billing runs the purchase flows that touch the payment gateway. Gateway
// calls happen before or after service mutations, never inside them, so the
// service lock is never held across network I/O.
type Billing struct {
	svc     *Service
	gateway payments.Gateway
}

func NewBilling(svc *Service, gateway payments.Gateway) *Billing {
	return &Billing{svc: svc, gateway: gateway}
}

// StartEnergyPurchase opens a gateway invoice for an energy bundle and
// records it pending. The gateway is charged in USD; the rouble price is
// kept on the invoice for display.
func (b *Billing) StartEnergyPurchase(ctx context.Context, userID int64, amount int) (*models.Invoice, error) {
	if amount <= 0 {
		return nil, ErrInvalidValue
	}
	pricing := b.svc.Pricing()
	price := pricing.PriceForEnergy(amount)
	usd, err := pricing.ConvertRubToUsd(price)
	if err != nil {
		return nil, err
	}

	created, err := b.gateway.CreateInvoice(ctx, payments.CreateInvoiceRequest{
		Amount:      usd,
		Description: fmt.Sprintf("Energy top-up (%d units)", amount),
		Payload:     fmt.Sprintf("energy:%d:%d", userID, amount),
	})
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		InvoiceID:    created.ID,
		UserID:       userID,
		Type:         models.InvoiceTypeEnergy,
		Amount:       created.Amount,
		Asset:        created.Asset,
		PayURL:       created.PayURL,
		Price:        price,
		Status:       models.InvoiceStatusPending,
		CreatedAt:    time.Now().UTC(),
		Payload:      created.Payload,
		EnergyAmount: amount,
	}
	if err := b.svc.RecordInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// StartGoldenPurchase opens a gateway invoice for a golden card measured in
// whole hours.
func (b *Billing) StartGoldenPurchase(ctx context.Context, userID int64, hours int) (*models.Invoice, error) {
	if hours <= 0 {
		return nil, ErrInvalidDuration
	}
	pricing := b.svc.Pricing()
	price, err := pricing.PriceForGoldenCard(time.Duration(hours) * time.Hour)
	if err != nil {
		return nil, err
	}
	usd, err := pricing.ConvertRubToUsd(price)
	if err != nil {
		return nil, err
	}

	created, err := b.gateway.CreateInvoice(ctx, payments.CreateInvoiceRequest{
		Amount:      usd,
		Description: fmt.Sprintf("Golden card for %dh", hours),
		Payload:     fmt.Sprintf("golden:%d:%d", userID, hours),
	})
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		InvoiceID:   created.ID,
		UserID:      userID,
		Type:        models.InvoiceTypeGolden,
		Amount:      created.Amount,
		Asset:       created.Asset,
		PayURL:      created.PayURL,
		Price:       price,
		Status:      models.InvoiceStatusPending,
		CreatedAt:   time.Now().UTC(),
		Payload:     created.Payload,
		GoldenHours: hours,
	}
	if err := b.svc.RecordInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// CheckInvoice polls the gateway and settles the invoice when it reports
// paid. Settlement is idempotent, so repeated checks are safe.
func (b *Billing) CheckInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	remote, err := b.gateway.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if remote.Status == payments.StatusPaid {
		return b.svc.ConfirmInvoicePayment(ctx, invoiceID)
	}
	return b.svc.GetInvoice(ctx, invoiceID)
}
