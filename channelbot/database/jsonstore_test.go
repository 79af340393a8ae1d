package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestJSONStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	store := NewJSONStorage(path)

	user := models.NewUser(42)
	require.NoError(t, user.AddEnergy(80))
	user.AddGoldenCard(models.NewGoldenCard(24*time.Hour, time.Now().UTC()))
	user.ReferredUsers[7] = true
	require.NoError(t, store.SaveUser(ctx, user))

	post := &models.Post{UserID: 42, Text: "пост", Status: models.PostStatusApproved, RequiresPin: true}
	require.NoError(t, store.AddPost(ctx, post))

	require.NoError(t, store.SaveInvoice(ctx, &models.Invoice{
		InvoiceID: 5, UserID: 42, Type: models.InvoiceTypeEnergy,
		EnergyAmount: 50, Status: models.InvoiceStatusPaid, Fulfilled: true,
		CreatedAt: time.Now().UTC(),
	}))

	ticket := &models.Ticket{
		UserID: 42, Status: models.TicketStatusOpen, Subject: "вопрос",
		Messages: []models.TicketMessage{{Sender: models.TicketSenderUser, Text: "вопрос"}},
	}
	require.NoError(t, store.CreateTicket(ctx, ticket))

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	settings.PostEnergyCost = 25
	require.NoError(t, store.SaveSettings(ctx, settings))

	// A fresh instance over the same file sees the identical state.
	reopened := NewJSONStorage(path)

	gotUser, err := reopened.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 80, gotUser.Energy)
	assert.True(t, gotUser.HasReferred(7))
	require.Len(t, gotUser.GoldenCards, 1)
	assert.Equal(t, models.Seconds(24*time.Hour), gotUser.GoldenCards[0].Duration)

	gotPost, err := reopened.GetPost(ctx, post.PostID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusApproved, gotPost.Status)
	assert.True(t, gotPost.RequiresPin)

	gotInvoice, err := reopened.GetInvoice(ctx, 5)
	require.NoError(t, err)
	assert.True(t, gotInvoice.Fulfilled)
	assert.Equal(t, models.InvoiceStatusPaid, gotInvoice.Status)

	gotTicket, err := reopened.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "вопрос", gotTicket.Subject)
	require.Len(t, gotTicket.Messages, 1)

	gotSettings, err := reopened.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, gotSettings.PostEnergyCost)

	// Sequences continue past the reload instead of reissuing ids.
	next := &models.Post{UserID: 42, Text: "ещё", Status: models.PostStatusPending}
	require.NoError(t, reopened.AddPost(ctx, next))
	assert.Equal(t, post.PostID+1, next.PostID)

	// The temp file never outlives a successful rename.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONStorageMissingFile(t *testing.T) {
	ctx := context.Background()
	store := NewJSONStorage(tempStorePath(t))

	_, err := store.GetUser(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPostEnergyCost, settings.PostEnergyCost)
}

func TestJSONStorageCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewJSONStorage(path)

	_, err := store.GetUser(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// The storage keeps working and replaces the corrupt document.
	require.NoError(t, store.SaveUser(ctx, models.NewUser(1)))
	reopened := NewJSONStorage(path)
	_, err = reopened.GetUser(ctx, 1)
	assert.NoError(t, err)
}

func TestJSONStorageMalformedField(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	// One user has a broken energy field, the other is intact. The broken
	// field resets to its default; the record and its neighbors survive.
	doc := `{
		"users": {
			"1": {"user_id": 1, "energy": "oops", "golden_cards": [], "referred_users": {"9": true}},
			"2": {"user_id": 2, "energy": 55, "golden_cards": [], "referred_users": {}}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store := NewJSONStorage(path)

	broken, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, broken.Energy)
	assert.True(t, broken.HasReferred(9))

	intact, err := store.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 55, intact.Energy)
}

func TestJSONStorageResyncsSequences(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	// The counters are missing from the document. New ids must still start
	// past the loaded entities instead of overwriting them.
	doc := `{
		"posts": {
			"3": {"post_id": 3, "user_id": 1, "text": "старый", "status": "pending"}
		},
		"tickets": {
			"2": {
				"ticket_id": 2, "user_id": 1, "status": "open", "subject": "тема",
				"messages": [{"message_id": 5, "sender": "user", "text": "тема"}]
			}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store := NewJSONStorage(path)

	post := &models.Post{UserID: 1, Text: "новый", Status: models.PostStatusPending}
	require.NoError(t, store.AddPost(ctx, post))
	assert.Equal(t, int64(4), post.PostID)

	kept, err := store.GetPost(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "старый", kept.Text)

	ticket := &models.Ticket{
		UserID: 1, Status: models.TicketStatusOpen, Subject: "новая",
		Messages: []models.TicketMessage{{Sender: models.TicketSenderUser, Text: "новая"}},
	}
	require.NoError(t, store.CreateTicket(ctx, ticket))
	assert.Equal(t, int64(3), ticket.TicketID)
	assert.Equal(t, int64(6), ticket.Messages[0].MessageID)
}

func TestJSONStorageSkipsMalformedIDKey(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	doc := `{"users": {"abc": {"user_id": 0, "energy": 1}, "3": {"user_id": 3, "energy": 2}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store := NewJSONStorage(path)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(3), users[0].UserID)
}
