package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	_, err := store.GetUser(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	user := models.NewUser(1)
	require.NoError(t, user.AddEnergy(100))
	require.NoError(t, store.SaveUser(ctx, user))

	// Mutating the saved pointer must not leak into storage.
	user.Energy = 0

	got, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Energy)

	// Nor must mutating a read result.
	got.Energy = 1
	again, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, again.Energy)

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryPosts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	first := &models.Post{UserID: 1, Text: "первый", Status: models.PostStatusPending}
	second := &models.Post{UserID: 2, Text: "второй", Status: models.PostStatusPending}
	require.NoError(t, store.AddPost(ctx, first))
	require.NoError(t, store.AddPost(ctx, second))
	assert.Equal(t, int64(1), first.PostID)
	assert.Equal(t, int64(2), second.PostID)

	second.Status = models.PostStatusApproved
	require.NoError(t, store.SavePost(ctx, second))

	pending, err := store.ListPostsByStatus(ctx, models.PostStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].PostID)

	mine, err := store.ListUserPosts(ctx, 2, models.PostStatusApproved)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "второй", mine[0].Text)

	n, err := store.CountPosts(ctx, models.PostStatusPending, models.PostStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	err = store.SavePost(ctx, &models.Post{PostID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryInvoices(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	now := time.Now().UTC()

	require.NoError(t, store.SaveInvoice(ctx, &models.Invoice{
		InvoiceID: 10, UserID: 1, Type: models.InvoiceTypeEnergy,
		Status: models.InvoiceStatusPending, CreatedAt: now,
	}))
	require.NoError(t, store.SaveInvoice(ctx, &models.Invoice{
		InvoiceID: 11, UserID: 2, Type: models.InvoiceTypeGolden,
		Status: models.InvoiceStatusPending, CreatedAt: now.Add(time.Second),
	}))

	got, err := store.GetInvoice(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceTypeEnergy, got.Type)

	list, err := store.ListUserInvoices(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(11), list[0].InvoiceID)

	_, err = store.GetInvoice(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySettings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPostEnergyCost, settings.PostEnergyCost)

	settings.PostEnergyCost = 35
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 35, got.PostEnergyCost)
}

func TestMemoryTickets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	now := time.Now().UTC()

	ticket := &models.Ticket{
		UserID: 1, Status: models.TicketStatusOpen, Subject: "не приходит энергия",
		CreatedAt: now, UpdatedAt: now,
		Messages: []models.TicketMessage{{Sender: models.TicketSenderUser, Text: "не приходит энергия", CreatedAt: now}},
	}
	require.NoError(t, store.CreateTicket(ctx, ticket))
	assert.Equal(t, int64(1), ticket.TicketID)
	assert.Equal(t, int64(1), ticket.Messages[0].MessageID)

	updated, err := store.AppendTicketMessage(ctx, ticket.TicketID, models.TicketMessage{
		Sender: models.TicketSenderAdmin, Text: "проверяем", CreatedAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)
	assert.Equal(t, int64(2), updated.Messages[1].MessageID)
	assert.Equal(t, now.Add(time.Minute), updated.UpdatedAt)

	open, err := store.ListTicketsByStatus(ctx, models.TicketStatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = store.AppendTicketMessage(ctx, 404, models.TicketMessage{Text: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
