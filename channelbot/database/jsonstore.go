package database

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// fileState is the on-disk document layout: maps keyed by stringified ids
// plus scalar settings and the monotonic counters.
type fileState struct {
	Users            map[string]*models.User    `json:"users"`
	Posts            map[string]*models.Post    `json:"posts"`
	Invoices         map[string]*models.Invoice `json:"invoices"`
	Tickets          map[string]*models.Ticket  `json:"tickets"`
	Settings         *models.BotSettings        `json:"settings"`
	PostSeq          int64                      `json:"post_sequence"`
	TicketSeq        int64                      `json:"ticket_sequence"`
	TicketMessageSeq int64                      `json:"ticket_message_sequence"`
}

func newFileState() *fileState {
	return &fileState{
		Users:    make(map[string]*models.User),
		Posts:    make(map[string]*models.Post),
		Invoices: make(map[string]*models.Invoice),
		Tickets:  make(map[string]*models.Ticket),
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		slog.Warn("Skipping entity with malformed id key",
			slog.String("type", "store"),
			slog.String("key", s))
		return 0, false
	}
	return id, true
}

// JSONStorage persists a MemoryStorage to a single JSON document. Every
// mutating call rewrites the whole file through a temp-file-then-rename so a
// crash never leaves a half-written document behind.
type JSONStorage struct {
	mem  *MemoryStorage
	path string
}

var _ Storage = (*JSONStorage)(nil)

// NewJSONStorage opens or creates the document at path. A corrupt or
// unreadable file is logged and replaced with a clean empty state instead of
// failing the boot.
func NewJSONStorage(path string) *JSONStorage {
	s := &JSONStorage{mem: NewMemoryStorage(), path: path}
	s.load()
	return s
}

func (s *JSONStorage) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Storage file unreadable, starting empty",
				slog.String("type", "store"),
				slog.String("path", s.path),
				slog.Any("error", err))
		}
		return
	}

	var raw struct {
		Users            map[string]json.RawMessage `json:"users"`
		Posts            map[string]json.RawMessage `json:"posts"`
		Invoices         map[string]json.RawMessage `json:"invoices"`
		Tickets          map[string]json.RawMessage `json:"tickets"`
		Settings         json.RawMessage            `json:"settings"`
		PostSeq          int64                      `json:"post_sequence"`
		TicketSeq        int64                      `json:"ticket_sequence"`
		TicketMessageSeq int64                      `json:"ticket_message_sequence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("Storage file corrupt, starting empty",
			slog.String("type", "store"),
			slog.String("path", s.path),
			slog.Any("error", err))
		return
	}

	state := newFileState()
	for id, entity := range raw.Users {
		user := models.NewUser(0)
		if decodeEntity(entity, user, "user", id) {
			state.Users[id] = user
		}
	}
	for id, entity := range raw.Posts {
		post := new(models.Post)
		if decodeEntity(entity, post, "post", id) {
			state.Posts[id] = post
		}
	}
	for id, entity := range raw.Invoices {
		invoice := new(models.Invoice)
		if decodeEntity(entity, invoice, "invoice", id) {
			state.Invoices[id] = invoice
		}
	}
	for id, entity := range raw.Tickets {
		ticket := new(models.Ticket)
		if decodeEntity(entity, ticket, "ticket", id) {
			state.Tickets[id] = ticket
		}
	}
	if len(raw.Settings) > 0 {
		settings := models.DefaultSettings()
		if decodeEntity(raw.Settings, settings, "settings", "") {
			state.Settings = settings
		}
	}
	state.PostSeq = raw.PostSeq
	state.TicketSeq = raw.TicketSeq
	state.TicketMessageSeq = raw.TicketMessageSeq
	s.mem.restore(state)
}

// decodeEntity tries a strict unmarshal first and falls back to per-field
// decoding so one malformed field costs that field, not the whole record.
func decodeEntity(data []byte, dst any, kind, id string) bool {
	if err := json.Unmarshal(data, dst); err == nil {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		slog.Warn("Dropping unparseable record",
			slog.String("type", "store"),
			slog.String("kind", kind),
			slog.String("id", id),
			slog.Any("error", err))
		return false
	}
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			continue
		}
		raw, ok := fields[tag]
		if !ok {
			continue
		}
		field := reflect.New(v.Field(i).Type())
		if err := json.Unmarshal(raw, field.Interface()); err != nil {
			slog.Warn("Field reset to default during load",
				slog.String("type", "store"),
				slog.String("kind", kind),
				slog.String("id", id),
				slog.String("field", tag),
				slog.Any("error", err))
			continue
		}
		v.Field(i).Set(field.Elem())
	}
	return true
}

// persist writes the whole state atomically. Failures are logged and the
// storage keeps operating from memory; acknowledged mutations are never
// silently dropped without a trace.
func (s *JSONStorage) persist() {
	state := s.mem.snapshot()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		slog.Error("Failed to serialize storage state",
			slog.String("type", "store"),
			slog.Any("error", err))
		return
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create storage directory",
				slog.String("type", "store"),
				slog.String("path", dir),
				slog.Any("error", err))
			return
		}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("Failed to write storage file, running memory-only",
			slog.String("type", "store"),
			slog.String("path", tmp),
			slog.Any("error", err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Error("Failed to replace storage file, running memory-only",
			slog.String("type", "store"),
			slog.String("path", s.path),
			slog.Any("error", err))
	}
}

func (s *JSONStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.mem.GetUser(ctx, userID)
}

func (s *JSONStorage) SaveUser(ctx context.Context, user *models.User) error {
	if err := s.mem.SaveUser(ctx, user); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.mem.ListUsers(ctx)
}

func (s *JSONStorage) CountUsers(ctx context.Context) (int, error) {
	return s.mem.CountUsers(ctx)
}

func (s *JSONStorage) AddPost(ctx context.Context, post *models.Post) error {
	if err := s.mem.AddPost(ctx, post); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) GetPost(ctx context.Context, postID int64) (*models.Post, error) {
	return s.mem.GetPost(ctx, postID)
}

func (s *JSONStorage) SavePost(ctx context.Context, post *models.Post) error {
	if err := s.mem.SavePost(ctx, post); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return s.mem.ListPosts(ctx)
}

func (s *JSONStorage) ListPostsByStatus(ctx context.Context, status models.PostStatus) ([]*models.Post, error) {
	return s.mem.ListPostsByStatus(ctx, status)
}

func (s *JSONStorage) ListUserPosts(ctx context.Context, userID int64, statuses ...models.PostStatus) ([]*models.Post, error) {
	return s.mem.ListUserPosts(ctx, userID, statuses...)
}

func (s *JSONStorage) CountPosts(ctx context.Context, statuses ...models.PostStatus) (int, error) {
	return s.mem.CountPosts(ctx, statuses...)
}

func (s *JSONStorage) SaveInvoice(ctx context.Context, invoice *models.Invoice) error {
	if err := s.mem.SaveInvoice(ctx, invoice); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) GetInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	return s.mem.GetInvoice(ctx, invoiceID)
}

func (s *JSONStorage) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	return s.mem.ListInvoices(ctx)
}

func (s *JSONStorage) ListUserInvoices(ctx context.Context, userID int64) ([]*models.Invoice, error) {
	return s.mem.ListUserInvoices(ctx, userID)
}

func (s *JSONStorage) GetSettings(ctx context.Context) (*models.BotSettings, error) {
	return s.mem.GetSettings(ctx)
}

func (s *JSONStorage) SaveSettings(ctx context.Context, settings *models.BotSettings) error {
	if err := s.mem.SaveSettings(ctx, settings); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if err := s.mem.CreateTicket(ctx, ticket); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) GetTicket(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	return s.mem.GetTicket(ctx, ticketID)
}

func (s *JSONStorage) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	if err := s.mem.SaveTicket(ctx, ticket); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *JSONStorage) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	return s.mem.ListTickets(ctx)
}

func (s *JSONStorage) ListTicketsByStatus(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error) {
	return s.mem.ListTicketsByStatus(ctx, status)
}

func (s *JSONStorage) ListUserTickets(ctx context.Context, userID int64) ([]*models.Ticket, error) {
	return s.mem.ListUserTickets(ctx, userID)
}

func (s *JSONStorage) AppendTicketMessage(ctx context.Context, ticketID int64, msg models.TicketMessage) (*models.Ticket, error) {
	ticket, err := s.mem.AppendTicketMessage(ctx, ticketID, msg)
	if err != nil {
		return nil, err
	}
	s.persist()
	return ticket, nil
}
