package channelbot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channeladmin/channelbot/channelbot/database/models"
	"github.com/channeladmin/channelbot/channelbot/economy"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *models.Post) (int64, int64, error) {
	return 0, 0, nil
}

func TestBotSetupMemory(t *testing.T) {
	cfg := Config{}
	cfg.Storage.Driver = "memory"

	b := New(cfg, "test", "none")
	require.NoError(t, b.Setup(context.Background(), nopPublisher{}))
	defer b.Close()

	assert.NotNil(t, b.Storage)
	assert.NotNil(t, b.Service)
	assert.NotNil(t, b.Scheduler)
	// No payments token, so billing stays disabled.
	assert.Nil(t, b.Billing)
}

func TestBotSetupJSON(t *testing.T) {
	cfg := Config{}
	cfg.Storage.Driver = "json"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.Payments.Token = "token"

	b := New(cfg, "test", "none")
	require.NoError(t, b.Setup(context.Background(), nopPublisher{}))
	defer b.Close()

	assert.NotNil(t, b.Billing)

	// The wired service runs end to end over the JSON backend.
	user, err := b.Service.RegisterUser(context.Background(), 1, true, "", "")
	require.NoError(t, err)
	assert.Equal(t, economy.DefaultRegistrationEnergy, user.Energy)
}

func TestBotSetupUnknownDriver(t *testing.T) {
	cfg := Config{}
	cfg.Storage.Driver = "cassandra"

	b := New(cfg, "test", "none")
	err := b.Setup(context.Background(), nopPublisher{})
	assert.ErrorContains(t, err, "unknown storage driver")
}
