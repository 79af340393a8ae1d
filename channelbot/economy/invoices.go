package economy

import (
	"context"
	"log/slog"
	"time"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// RecordInvoice stores a gateway-created invoice in pending state.
func (s *Service) RecordInvoice(ctx context.Context, invoice *models.Invoice) error {
	if invoice.InvoiceID == 0 || invoice.UserID == 0 {
		return ErrInvalidValue
	}
	switch invoice.Type {
	case models.InvoiceTypeEnergy:
		if invoice.EnergyAmount <= 0 {
			return ErrInvalidValue
		}
	case models.InvoiceTypeGolden:
		if invoice.GoldenHours <= 0 {
			return ErrInvalidValue
		}
	default:
		return ErrInvalidValue
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusPending
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.SaveInvoice(ctx, invoice)
}

// MarkInvoicePaid flips the invoice to paid and stamps PaidAt if unset. It
// performs no fulfillment; use ConfirmInvoicePayment for the full settle
// path.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markInvoicePaid(ctx, invoiceID)
}

func (s *Service) markInvoicePaid(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	invoice, err := s.storage.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusPaid {
		invoice.Status = models.InvoiceStatusPaid
	}
	if invoice.PaidAt.IsZero() {
		invoice.PaidAt = time.Now().UTC()
	}
	if err := s.storage.SaveInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// ConfirmInvoicePayment marks the invoice paid and performs its fulfillment
// (energy credit or golden-card grant) exactly once. The Fulfilled flag is
// checked and set under the service lock, so a caller retry after a partial
// failure cannot double-credit.
func (s *Service) ConfirmInvoicePayment(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, err := s.markInvoicePaid(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Fulfilled {
		return invoice, nil
	}
	invoice.Fulfilled = true
	if err := s.storage.SaveInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	// The money is already settled at this point, so fulfillment ignores the
	// ban flag instead of eating a paid invoice.
	user, err := s.getOrCreateUser(ctx, invoice.UserID)
	if err != nil {
		return nil, err
	}
	switch invoice.Type {
	case models.InvoiceTypeEnergy:
		if err := user.AddEnergy(invoice.EnergyAmount); err != nil {
			return nil, err
		}
	case models.InvoiceTypeGolden:
		duration := time.Duration(invoice.GoldenHours) * time.Hour
		user.AddGoldenCard(models.NewGoldenCard(duration, time.Now().UTC()))
	}
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("Invoice fulfilled",
		slog.String("type", "pay"),
		slog.Int64("invoice_id", invoice.InvoiceID),
		slog.Int64("user_id", invoice.UserID),
		slog.String("invoice_type", string(invoice.Type)))
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.GetInvoice(ctx, invoiceID)
}

func (s *Service) ListUserInvoices(ctx context.Context, userID int64) ([]*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListUserInvoices(ctx, userID)
}
