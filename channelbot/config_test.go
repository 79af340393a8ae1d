package channelbot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[log]
level = "INFO"
add_source = false

[bot]
token = "telegram-token"
channel_id = -1001234567890
admin_ids = [111, 222]

[storage]
driver = "json"
path = "state.json"

[db]
host = "localhost"
port = 5432
user = "bot"
password = "secret"
database = "channelbot"
pool_size = 10

[pricing]
energy_price_per_unit = 1.0
golden_card_hourly_price = 1.5
rubles_per_usd = 66.4

[[pricing.energy_bundles]]
amount = 50
price = 249.0

[[pricing.energy_bundles]]
amount = 100
price = 499.0

[filter]
banned_words = ["спам"]

[economy]
registration_energy = 100
referral_energy = 50
autopost_interval_seconds = 30

[payments]
token = "crypto-pay-token"
asset = "USDT"
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "telegram-token", cfg.Bot.Token)
	assert.Equal(t, int64(-1001234567890), cfg.Bot.ChannelID)
	assert.Equal(t, []int64{111, 222}, cfg.Bot.AdminIDs)

	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, "state.json", cfg.Storage.Path)

	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 10, cfg.DB.PoolSize)

	assert.Equal(t, 1.0, cfg.Pricing.EnergyPricePerUnit)
	require.Len(t, cfg.Pricing.EnergyBundles, 2)
	assert.Equal(t, 50, cfg.Pricing.EnergyBundles[0].Amount)
	assert.Equal(t, 249.0, cfg.Pricing.EnergyBundles[0].Price)
	assert.Equal(t, 66.4, cfg.Pricing.RublesPerUSD)

	assert.Equal(t, []string{"спам"}, cfg.Filter.BannedWords)
	assert.Equal(t, 100, cfg.Economy.RegistrationEnergy)
	assert.Equal(t, 30, cfg.Economy.AutopostIntervalSeconds)
	assert.Equal(t, "crypto-pay-token", cfg.Payments.Token)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
