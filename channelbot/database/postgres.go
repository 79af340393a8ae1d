package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// PostgresStorage implements Storage on top of bun for deployments that have
// outgrown the single JSON file. Owned collections (golden cards, referred
// users, ticket messages) live as JSONB columns on their parent rows.
type PostgresStorage struct {
	db *bun.DB
}

var _ Storage = (*PostgresStorage)(nil)

func NewPostgresStorage(db *DB) *PostgresStorage {
	return &PostgresStorage{db: db.BunDB()}
}

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	UserID        int64               `bun:"user_id,pk"`
	Energy        int                 `bun:"energy,notnull,default:0"`
	GoldenCards   []models.GoldenCard `bun:"golden_cards,type:jsonb"`
	ReferredUsers map[int64]bool      `bun:"referred_users,type:jsonb"`
	IsBanned      bool                `bun:"is_banned,notnull,default:false"`
	IsAdmin       bool                `bun:"is_admin,notnull,default:false"`
	Username      string              `bun:"username"`
	FullName      string              `bun:"full_name"`
}

type postRow struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	PostID           int64             `bun:"post_id,pk,autoincrement"`
	UserID           int64             `bun:"user_id,notnull"`
	Text             string            `bun:"text,notnull"`
	RequiresPin      bool              `bun:"requires_pin,notnull,default:false"`
	CreatedAt        time.Time         `bun:"created_at,notnull"`
	Status           models.PostStatus `bun:"status,notnull"`
	ChannelMessageID int64             `bun:"channel_message_id"`
	ChatMessageID    int64             `bun:"chat_message_id"`
	ButtonText       string            `bun:"button_text"`
	ButtonURL        string            `bun:"button_url"`
	PhotoFileID      string            `bun:"photo_file_id"`
	ParseMode        string            `bun:"parse_mode"`
}

type invoiceRow struct {
	bun.BaseModel `bun:"table:invoices,alias:i"`

	InvoiceID    int64                `bun:"invoice_id,pk"`
	UserID       int64                `bun:"user_id,notnull"`
	Type         models.InvoiceType   `bun:"invoice_type,notnull"`
	Amount       float64              `bun:"amount,notnull"`
	Asset        string               `bun:"asset,notnull"`
	PayURL       string               `bun:"pay_url"`
	Price        float64              `bun:"price,notnull"`
	Status       models.InvoiceStatus `bun:"status,notnull"`
	CreatedAt    time.Time            `bun:"created_at,notnull"`
	PaidAt       time.Time            `bun:"paid_at,nullzero"`
	Payload      string               `bun:"payload"`
	EnergyAmount int                  `bun:"energy_amount,notnull,default:0"`
	GoldenHours  int                  `bun:"golden_hours,notnull,default:0"`
	Fulfilled    bool                 `bun:"fulfilled,notnull,default:false"`
}

type ticketRow struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	TicketID  int64                  `bun:"ticket_id,pk,autoincrement"`
	UserID    int64                  `bun:"user_id,notnull"`
	Status    models.TicketStatus    `bun:"status,notnull"`
	Subject   string                 `bun:"subject"`
	CreatedAt time.Time              `bun:"created_at,notnull"`
	UpdatedAt time.Time              `bun:"updated_at,notnull"`
	Messages  []models.TicketMessage `bun:"messages,type:jsonb"`
}

type settingsRow struct {
	bun.BaseModel `bun:"table:bot_settings,alias:s"`

	ID                     int64   `bun:"id,pk"`
	AutopostPaused         bool    `bun:"autopost_paused,notnull,default:false"`
	PostEnergyCost         int     `bun:"post_energy_cost,notnull"`
	EnergyPricePerUnit     float64 `bun:"energy_price_per_unit,notnull"`
	SubscriptionChatID     int64   `bun:"subscription_chat_id"`
	SubscriptionInviteLink string  `bun:"subscription_invite_link"`
}

type sequenceRow struct {
	bun.BaseModel `bun:"table:sequences,alias:sq"`

	Name  string `bun:"name,pk"`
	Value int64  `bun:"value,notnull"`
}

// InitSchema creates the tables on first boot.
func (s *PostgresStorage) InitSchema(ctx context.Context) error {
	rowModels := []any{
		(*userRow)(nil),
		(*postRow)(nil),
		(*invoiceRow)(nil),
		(*ticketRow)(nil),
		(*settingsRow)(nil),
		(*sequenceRow)(nil),
	}
	for _, model := range rowModels {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create table: %v", ErrPersistence, err)
		}
	}
	return nil
}

func (s *PostgresStorage) nextSequence(ctx context.Context, name string) (int64, error) {
	var next int64
	err := s.db.NewRaw(
		`INSERT INTO sequences (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		 RETURNING value`,
		name,
	).Scan(ctx, &next)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence %s: %v", ErrPersistence, name, err)
	}
	return next, nil
}

func userToRow(u *models.User) *userRow {
	return &userRow{
		UserID:        u.UserID,
		Energy:        u.Energy,
		GoldenCards:   u.GoldenCards,
		ReferredUsers: u.ReferredUsers,
		IsBanned:      u.IsBanned,
		IsAdmin:       u.IsAdmin,
		Username:      u.Username,
		FullName:      u.FullName,
	}
}

func rowToUser(r *userRow) *models.User {
	user := &models.User{
		UserID:        r.UserID,
		Energy:        r.Energy,
		GoldenCards:   r.GoldenCards,
		ReferredUsers: r.ReferredUsers,
		IsBanned:      r.IsBanned,
		IsAdmin:       r.IsAdmin,
		Username:      r.Username,
		FullName:      r.FullName,
	}
	if user.GoldenCards == nil {
		user.GoldenCards = []models.GoldenCard{}
	}
	if user.ReferredUsers == nil {
		user.ReferredUsers = map[int64]bool{}
	}
	return user
}

func (s *PostgresStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	row := new(userRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get user: %v", ErrPersistence, err)
	}
	return rowToUser(row), nil
}

func (s *PostgresStorage) SaveUser(ctx context.Context, user *models.User) error {
	row := userToRow(user)
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("energy = EXCLUDED.energy").
		Set("golden_cards = EXCLUDED.golden_cards").
		Set("referred_users = EXCLUDED.referred_users").
		Set("is_banned = EXCLUDED.is_banned").
		Set("is_admin = EXCLUDED.is_admin").
		Set("username = EXCLUDED.username").
		Set("full_name = EXCLUDED.full_name").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: save user: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	var rows []*userRow
	if err := s.db.NewSelect().Model(&rows).Order("user_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list users: %v", ErrPersistence, err)
	}
	users := make([]*models.User, len(rows))
	for i, row := range rows {
		users[i] = rowToUser(row)
	}
	return users, nil
}

func (s *PostgresStorage) CountUsers(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*userRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count users: %v", ErrPersistence, err)
	}
	return n, nil
}

func postToRow(p *models.Post) *postRow {
	return &postRow{
		PostID:           p.PostID,
		UserID:           p.UserID,
		Text:             p.Text,
		RequiresPin:      p.RequiresPin,
		CreatedAt:        p.CreatedAt,
		Status:           p.Status,
		ChannelMessageID: p.ChannelMessageID,
		ChatMessageID:    p.ChatMessageID,
		ButtonText:       p.ButtonText,
		ButtonURL:        p.ButtonURL,
		PhotoFileID:      p.PhotoFileID,
		ParseMode:        p.ParseMode,
	}
}

func rowToPost(r *postRow) *models.Post {
	return &models.Post{
		PostID:           r.PostID,
		UserID:           r.UserID,
		Text:             r.Text,
		RequiresPin:      r.RequiresPin,
		CreatedAt:        r.CreatedAt,
		Status:           r.Status,
		ChannelMessageID: r.ChannelMessageID,
		ChatMessageID:    r.ChatMessageID,
		ButtonText:       r.ButtonText,
		ButtonURL:        r.ButtonURL,
		PhotoFileID:      r.PhotoFileID,
		ParseMode:        r.ParseMode,
	}
}

func (s *PostgresStorage) AddPost(ctx context.Context, post *models.Post) error {
	row := postToRow(post)
	row.PostID = 0
	if _, err := s.db.NewInsert().Model(row).Returning("post_id").Exec(ctx); err != nil {
		return fmt.Errorf("%w: add post: %v", ErrPersistence, err)
	}
	post.PostID = row.PostID
	return nil
}

func (s *PostgresStorage) GetPost(ctx context.Context, postID int64) (*models.Post, error) {
	row := new(postRow)
	err := s.db.NewSelect().Model(row).Where("post_id = ?", postID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get post: %v", ErrPersistence, err)
	}
	return rowToPost(row), nil
}

func (s *PostgresStorage) SavePost(ctx context.Context, post *models.Post) error {
	res, err := s.db.NewUpdate().Model(postToRow(post)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: save post: %v", ErrPersistence, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return s.selectPosts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery { return q })
}

func (s *PostgresStorage) ListPostsByStatus(ctx context.Context, status models.PostStatus) ([]*models.Post, error) {
	return s.selectPosts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", status)
	})
}

func (s *PostgresStorage) ListUserPosts(ctx context.Context, userID int64, statuses ...models.PostStatus) ([]*models.Post, error) {
	return s.selectPosts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("user_id = ?", userID)
		if len(statuses) > 0 {
			q = q.Where("status IN (?)", bun.In(statuses))
		}
		return q
	})
}

func (s *PostgresStorage) selectPosts(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) ([]*models.Post, error) {
	var rows []*postRow
	q := apply(s.db.NewSelect().Model(&rows)).Order("post_id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list posts: %v", ErrPersistence, err)
	}
	posts := make([]*models.Post, len(rows))
	for i, row := range rows {
		posts[i] = rowToPost(row)
	}
	return posts, nil
}

func (s *PostgresStorage) CountPosts(ctx context.Context, statuses ...models.PostStatus) (int, error) {
	q := s.db.NewSelect().Model((*postRow)(nil))
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count posts: %v", ErrPersistence, err)
	}
	return n, nil
}

func invoiceToRow(i *models.Invoice) *invoiceRow {
	return &invoiceRow{
		InvoiceID:    i.InvoiceID,
		UserID:       i.UserID,
		Type:         i.Type,
		Amount:       i.Amount,
		Asset:        i.Asset,
		PayURL:       i.PayURL,
		Price:        i.Price,
		Status:       i.Status,
		CreatedAt:    i.CreatedAt,
		PaidAt:       i.PaidAt,
		Payload:      i.Payload,
		EnergyAmount: i.EnergyAmount,
		GoldenHours:  i.GoldenHours,
		Fulfilled:    i.Fulfilled,
	}
}

func rowToInvoice(r *invoiceRow) *models.Invoice {
	return &models.Invoice{
		InvoiceID:    r.InvoiceID,
		UserID:       r.UserID,
		Type:         r.Type,
		Amount:       r.Amount,
		Asset:        r.Asset,
		PayURL:       r.PayURL,
		Price:        r.Price,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		PaidAt:       r.PaidAt,
		Payload:      r.Payload,
		EnergyAmount: r.EnergyAmount,
		GoldenHours:  r.GoldenHours,
		Fulfilled:    r.Fulfilled,
	}
}

func (s *PostgresStorage) SaveInvoice(ctx context.Context, invoice *models.Invoice) error {
	row := invoiceToRow(invoice)
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (invoice_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("paid_at = EXCLUDED.paid_at").
		Set("fulfilled = EXCLUDED.fulfilled").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: save invoice: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStorage) GetInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	row := new(invoiceRow)
	err := s.db.NewSelect().Model(row).Where("invoice_id = ?", invoiceID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get invoice: %v", ErrPersistence, err)
	}
	return rowToInvoice(row), nil
}

func (s *PostgresStorage) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	return s.selectInvoices(ctx, 0)
}

func (s *PostgresStorage) ListUserInvoices(ctx context.Context, userID int64) ([]*models.Invoice, error) {
	return s.selectInvoices(ctx, userID)
}

func (s *PostgresStorage) selectInvoices(ctx context.Context, userID int64) ([]*models.Invoice, error) {
	var rows []*invoiceRow
	q := s.db.NewSelect().Model(&rows).Order("created_at ASC")
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list invoices: %v", ErrPersistence, err)
	}
	invoices := make([]*models.Invoice, len(rows))
	for i, row := range rows {
		invoices[i] = rowToInvoice(row)
	}
	return invoices, nil
}

func (s *PostgresStorage) GetSettings(ctx context.Context) (*models.BotSettings, error) {
	row := new(settingsRow)
	err := s.db.NewSelect().Model(row).Where("id = 1").Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultSettings(), nil
		}
		return nil, fmt.Errorf("%w: get settings: %v", ErrPersistence, err)
	}
	return &models.BotSettings{
		AutopostPaused:         row.AutopostPaused,
		PostEnergyCost:         row.PostEnergyCost,
		EnergyPricePerUnit:     row.EnergyPricePerUnit,
		SubscriptionChatID:     row.SubscriptionChatID,
		SubscriptionInviteLink: row.SubscriptionInviteLink,
	}, nil
}

func (s *PostgresStorage) SaveSettings(ctx context.Context, settings *models.BotSettings) error {
	row := &settingsRow{
		ID:                     1,
		AutopostPaused:         settings.AutopostPaused,
		PostEnergyCost:         settings.PostEnergyCost,
		EnergyPricePerUnit:     settings.EnergyPricePerUnit,
		SubscriptionChatID:     settings.SubscriptionChatID,
		SubscriptionInviteLink: settings.SubscriptionInviteLink,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("autopost_paused = EXCLUDED.autopost_paused").
		Set("post_energy_cost = EXCLUDED.post_energy_cost").
		Set("energy_price_per_unit = EXCLUDED.energy_price_per_unit").
		Set("subscription_chat_id = EXCLUDED.subscription_chat_id").
		Set("subscription_invite_link = EXCLUDED.subscription_invite_link").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: save settings: %v", ErrPersistence, err)
	}
	return nil
}

func ticketToRow(t *models.Ticket) *ticketRow {
	return &ticketRow{
		TicketID:  t.TicketID,
		UserID:    t.UserID,
		Status:    t.Status,
		Subject:   t.Subject,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Messages:  t.Messages,
	}
}

func rowToTicket(r *ticketRow) *models.Ticket {
	ticket := &models.Ticket{
		TicketID:  r.TicketID,
		UserID:    r.UserID,
		Status:    r.Status,
		Subject:   r.Subject,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Messages:  r.Messages,
	}
	if ticket.Messages == nil {
		ticket.Messages = []models.TicketMessage{}
	}
	return ticket
}

func (s *PostgresStorage) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	for i := range ticket.Messages {
		next, err := s.nextSequence(ctx, "ticket_message")
		if err != nil {
			return err
		}
		ticket.Messages[i].MessageID = next
	}
	row := ticketToRow(ticket)
	row.TicketID = 0
	if _, err := s.db.NewInsert().Model(row).Returning("ticket_id").Exec(ctx); err != nil {
		return fmt.Errorf("%w: create ticket: %v", ErrPersistence, err)
	}
	ticket.TicketID = row.TicketID
	return nil
}

func (s *PostgresStorage) GetTicket(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	row := new(ticketRow)
	err := s.db.NewSelect().Model(row).Where("ticket_id = ?", ticketID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get ticket: %v", ErrPersistence, err)
	}
	return rowToTicket(row), nil
}

func (s *PostgresStorage) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	res, err := s.db.NewUpdate().Model(ticketToRow(ticket)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: save ticket: %v", ErrPersistence, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	return s.selectTickets(ctx, func(q *bun.SelectQuery) *bun.SelectQuery { return q })
}

func (s *PostgresStorage) ListTicketsByStatus(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error) {
	return s.selectTickets(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", status)
	})
}

func (s *PostgresStorage) ListUserTickets(ctx context.Context, userID int64) ([]*models.Ticket, error) {
	return s.selectTickets(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID)
	})
}

func (s *PostgresStorage) selectTickets(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) ([]*models.Ticket, error) {
	var rows []*ticketRow
	q := apply(s.db.NewSelect().Model(&rows)).Order("ticket_id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list tickets: %v", ErrPersistence, err)
	}
	tickets := make([]*models.Ticket, len(rows))
	for i, row := range rows {
		tickets[i] = rowToTicket(row)
	}
	return tickets, nil
}

func (s *PostgresStorage) AppendTicketMessage(ctx context.Context, ticketID int64, msg models.TicketMessage) (*models.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	next, err := s.nextSequence(ctx, "ticket_message")
	if err != nil {
		return nil, err
	}
	msg.MessageID = next
	ticket.AppendMessage(msg)
	if err := s.SaveTicket(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}
