package economy

import (
	"context"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// subjectLimit bounds the derived ticket subject.
const subjectLimit = 64

// OpenTicket starts a support conversation seeded with the user's first
// message; the subject is derived from it.
func (s *Service) OpenTicket(ctx context.Context, userID int64, text string) (*models.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getOrCreateUser(ctx, userID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ticket := &models.Ticket{
		UserID:    userID,
		Status:    models.TicketStatusOpen,
		Subject:   truncateSubject(text, subjectLimit),
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []models.TicketMessage{{
			Sender:    models.TicketSenderUser,
			Text:      text,
			CreatedAt: now,
		}},
	}
	if err := s.storage.CreateTicket(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// AddTicketMessage appends a message from either side and advances the
// ticket's UpdatedAt.
func (s *Service) AddTicketMessage(ctx context.Context, ticketID int64, sender models.TicketSender, text string) (*models.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storage.AppendTicketMessage(ctx, ticketID, models.TicketMessage{
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
}

// CloseTicket closes the ticket. When actorID is non-zero it must match the
// ticket owner; admins pass zero.
func (s *Service) CloseTicket(ctx context.Context, ticketID, actorID int64) (*models.Ticket, error) {
	return s.setTicketStatus(ctx, ticketID, actorID, models.TicketStatusClosed)
}

// ReopenTicket reopens a closed ticket under the same ownership rule as
// CloseTicket.
func (s *Service) ReopenTicket(ctx context.Context, ticketID, actorID int64) (*models.Ticket, error) {
	return s.setTicketStatus(ctx, ticketID, actorID, models.TicketStatusOpen)
}

func (s *Service) setTicketStatus(ctx context.Context, ticketID, actorID int64, status models.TicketStatus) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, err := s.storage.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if actorID != 0 && actorID != ticket.UserID {
		return nil, ErrPermissionDenied
	}
	if ticket.Status == status {
		return ticket, nil
	}
	ticket.Status = status
	if err := s.storage.SaveTicket(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.GetTicket(ctx, ticketID)
}

func (s *Service) ListUserTickets(ctx context.Context, userID int64) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListUserTickets(ctx, userID)
}

func (s *Service) ListTicketsByStatus(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListTicketsByStatus(ctx, status)
}

// SearchTickets fuzzy-matches the query against ticket subjects for the
// admin panel, best matches first.
func (s *Service) SearchTickets(ctx context.Context, query string) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.storage.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return tickets, nil
	}
	subjects := make([]string, len(tickets))
	for i, ticket := range tickets {
		subjects[i] = ticket.Subject
	}
	matches := fuzzy.Find(query, subjects)
	found := make([]*models.Ticket, len(matches))
	for i, match := range matches {
		found[i] = tickets[match.Index]
	}
	return found, nil
}
