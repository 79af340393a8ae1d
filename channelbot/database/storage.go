package database

import (
	"context"
	"errors"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

var (
	// ErrNotFound is returned by every Get* when the entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrPersistence marks a storage backend I/O failure. The JSON backend
	// logs it and keeps serving from memory instead of propagating it.
	ErrPersistence = errors.New("persistence failure")
)

// Storage is the persistence contract the economy service runs against.
// Every read returns an independent copy: mutating a returned entity never
// changes stored state until it is saved back explicitly.
type Storage interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	CountUsers(ctx context.Context) (int, error)

	// AddPost assigns a monotonically increasing PostID and stores the post.
	AddPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, postID int64) (*models.Post, error)
	SavePost(ctx context.Context, post *models.Post) error
	ListPosts(ctx context.Context) ([]*models.Post, error)
	ListPostsByStatus(ctx context.Context, status models.PostStatus) ([]*models.Post, error)
	ListUserPosts(ctx context.Context, userID int64, statuses ...models.PostStatus) ([]*models.Post, error)
	CountPosts(ctx context.Context, statuses ...models.PostStatus) (int, error)

	SaveInvoice(ctx context.Context, invoice *models.Invoice) error
	GetInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context) ([]*models.Invoice, error)
	ListUserInvoices(ctx context.Context, userID int64) ([]*models.Invoice, error)

	// GetSettings never fails with ErrNotFound; absent settings yield the
	// defaults.
	GetSettings(ctx context.Context) (*models.BotSettings, error)
	SaveSettings(ctx context.Context, settings *models.BotSettings) error

	// CreateTicket assigns TicketID and ids for any seed messages.
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, ticketID int64) (*models.Ticket, error)
	SaveTicket(ctx context.Context, ticket *models.Ticket) error
	ListTickets(ctx context.Context) ([]*models.Ticket, error)
	ListTicketsByStatus(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error)
	ListUserTickets(ctx context.Context, userID int64) ([]*models.Ticket, error)
	// AppendTicketMessage assigns the message id, appends, advances the
	// ticket's UpdatedAt and returns the updated ticket.
	AppendTicketMessage(ctx context.Context, ticketID int64, msg models.TicketMessage) (*models.Ticket, error)
}
