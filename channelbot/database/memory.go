package database

import (
	"context"
	"sort"
	"sync"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// MemoryStorage keeps everything in process memory. It is the reference
// Storage implementation and the substrate the JSON backend persists.
type MemoryStorage struct {
	mu        sync.RWMutex
	users     map[int64]*models.User
	posts     map[int64]*models.Post
	invoices  map[int64]*models.Invoice
	tickets   map[int64]*models.Ticket
	settings  *models.BotSettings
	postSeq   int64
	ticketSeq int64
	msgSeq    int64
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[int64]*models.User),
		posts:    make(map[int64]*models.Post),
		invoices: make(map[int64]*models.Invoice),
		tickets:  make(map[int64]*models.Ticket),
	}
}

func (s *MemoryStorage) GetUser(_ context.Context, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return user.Clone(), nil
}

func (s *MemoryStorage) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user.Clone()
	return nil
}

func (s *MemoryStorage) ListUsers(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user.Clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

func (s *MemoryStorage) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStorage) AddPost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postSeq++
	post.PostID = s.postSeq
	s.posts[post.PostID] = post.Clone()
	return nil
}

func (s *MemoryStorage) GetPost(_ context.Context, postID int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[postID]
	if !ok {
		return nil, ErrNotFound
	}
	return post.Clone(), nil
}

func (s *MemoryStorage) SavePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.PostID]; !ok {
		return ErrNotFound
	}
	s.posts[post.PostID] = post.Clone()
	return nil
}

func (s *MemoryStorage) ListPosts(_ context.Context) ([]*models.Post, error) {
	return s.listPosts(nil), nil
}

func (s *MemoryStorage) ListPostsByStatus(_ context.Context, status models.PostStatus) ([]*models.Post, error) {
	return s.listPosts(func(p *models.Post) bool { return p.Status == status }), nil
}

func (s *MemoryStorage) ListUserPosts(_ context.Context, userID int64, statuses ...models.PostStatus) ([]*models.Post, error) {
	return s.listPosts(func(p *models.Post) bool {
		return p.UserID == userID && matchStatus(p.Status, statuses)
	}), nil
}

func (s *MemoryStorage) CountPosts(_ context.Context, statuses ...models.PostStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, post := range s.posts {
		if matchStatus(post.Status, statuses) {
			n++
		}
	}
	return n, nil
}

// listPosts returns clones in storage (insertion id) order.
func (s *MemoryStorage) listPosts(keep func(*models.Post) bool) []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]*models.Post, 0, len(s.posts))
	for _, post := range s.posts {
		if keep == nil || keep(post) {
			posts = append(posts, post.Clone())
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PostID < posts[j].PostID })
	return posts
}

func matchStatus(status models.PostStatus, statuses []models.PostStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *MemoryStorage) SaveInvoice(_ context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[invoice.InvoiceID] = invoice.Clone()
	return nil
}

func (s *MemoryStorage) GetInvoice(_ context.Context, invoiceID int64) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := s.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	return invoice.Clone(), nil
}

func (s *MemoryStorage) ListInvoices(_ context.Context) ([]*models.Invoice, error) {
	return s.listInvoices(nil), nil
}

func (s *MemoryStorage) ListUserInvoices(_ context.Context, userID int64) ([]*models.Invoice, error) {
	return s.listInvoices(func(i *models.Invoice) bool { return i.UserID == userID }), nil
}

func (s *MemoryStorage) listInvoices(keep func(*models.Invoice) bool) []*models.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoices := make([]*models.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		if keep == nil || keep(invoice) {
			invoices = append(invoices, invoice.Clone())
		}
	}
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.Before(invoices[j].CreatedAt)
	})
	return invoices
}

func (s *MemoryStorage) GetSettings(_ context.Context) (*models.BotSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return models.DefaultSettings(), nil
	}
	return s.settings.Clone(), nil
}

func (s *MemoryStorage) SaveSettings(_ context.Context, settings *models.BotSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.Clone()
	return nil
}

func (s *MemoryStorage) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketSeq++
	ticket.TicketID = s.ticketSeq
	for i := range ticket.Messages {
		s.msgSeq++
		ticket.Messages[i].MessageID = s.msgSeq
	}
	s.tickets[ticket.TicketID] = ticket.Clone()
	return nil
}

func (s *MemoryStorage) GetTicket(_ context.Context, ticketID int64) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (s *MemoryStorage) SaveTicket(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.TicketID]; !ok {
		return ErrNotFound
	}
	s.tickets[ticket.TicketID] = ticket.Clone()
	return nil
}

func (s *MemoryStorage) ListTickets(_ context.Context) ([]*models.Ticket, error) {
	return s.listTickets(nil), nil
}

func (s *MemoryStorage) ListTicketsByStatus(_ context.Context, status models.TicketStatus) ([]*models.Ticket, error) {
	return s.listTickets(func(t *models.Ticket) bool { return t.Status == status }), nil
}

func (s *MemoryStorage) ListUserTickets(_ context.Context, userID int64) ([]*models.Ticket, error) {
	return s.listTickets(func(t *models.Ticket) bool { return t.UserID == userID }), nil
}

func (s *MemoryStorage) listTickets(keep func(*models.Ticket) bool) []*models.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tickets := make([]*models.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if keep == nil || keep(ticket) {
			tickets = append(tickets, ticket.Clone())
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].TicketID < tickets[j].TicketID })
	return tickets
}

func (s *MemoryStorage) AppendTicketMessage(_ context.Context, ticketID int64, msg models.TicketMessage) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	s.msgSeq++
	msg.MessageID = s.msgSeq
	ticket.AppendMessage(msg)
	return ticket.Clone(), nil
}

// snapshot copies the full state for persistence. Callers must not hold the
// storage lock.
func (s *MemoryStorage) snapshot() *fileState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := newFileState()
	for id, user := range s.users {
		state.Users[formatID(id)] = user.Clone()
	}
	for id, post := range s.posts {
		state.Posts[formatID(id)] = post.Clone()
	}
	for id, invoice := range s.invoices {
		state.Invoices[formatID(id)] = invoice.Clone()
	}
	for id, ticket := range s.tickets {
		state.Tickets[formatID(id)] = ticket.Clone()
	}
	if s.settings != nil {
		state.Settings = s.settings.Clone()
	}
	state.PostSeq = s.postSeq
	state.TicketSeq = s.ticketSeq
	state.TicketMessageSeq = s.msgSeq
	return state
}

// restore replaces the full state from a loaded document. Counters are
// clamped to the highest loaded id, so a document with a missing or reset
// sequence can never reissue an id that is already taken.
func (s *MemoryStorage) restore(state *fileState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, user := range state.Users {
		if parsed, ok := parseID(id); ok {
			user.UserID = parsed
			s.users[parsed] = user
		}
	}
	for id, post := range state.Posts {
		if parsed, ok := parseID(id); ok {
			post.PostID = parsed
			s.posts[parsed] = post
		}
	}
	for id, invoice := range state.Invoices {
		if parsed, ok := parseID(id); ok {
			invoice.InvoiceID = parsed
			s.invoices[parsed] = invoice
		}
	}
	for id, ticket := range state.Tickets {
		if parsed, ok := parseID(id); ok {
			ticket.TicketID = parsed
			s.tickets[parsed] = ticket
		}
	}
	s.settings = state.Settings
	s.postSeq = state.PostSeq
	s.ticketSeq = state.TicketSeq
	s.msgSeq = state.TicketMessageSeq
	for id := range s.posts {
		s.postSeq = max(s.postSeq, id)
	}
	for id, ticket := range s.tickets {
		s.ticketSeq = max(s.ticketSeq, id)
		for _, msg := range ticket.Messages {
			s.msgSeq = max(s.msgSeq, msg.MessageID)
		}
	}
}
