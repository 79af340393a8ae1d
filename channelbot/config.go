package channelbot

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/channeladmin/channelbot/channelbot/database"
	"github.com/channeladmin/channelbot/channelbot/economy"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log      LogConfig             `toml:"log"`
	Bot      BotConfig             `toml:"bot"`
	Storage  StorageConfig         `toml:"storage"`
	DB       database.DBConfig     `toml:"db"`
	Pricing  economy.PricingConfig `toml:"pricing"`
	Filter   FilterConfig          `toml:"filter"`
	Economy  EconomyConfig         `toml:"economy"`
	Payments PaymentsConfig        `toml:"payments"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type BotConfig struct {
	Token     string  `toml:"token"`
	ChannelID int64   `toml:"channel_id"`
	AdminIDs  []int64 `toml:"admin_ids"`
}

// StorageConfig selects the persistence backend: "json" (default),
// "memory", or "postgres" (which reads the [db] section).
type StorageConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

type FilterConfig struct {
	BannedWords []string `toml:"banned_words"`
}

type EconomyConfig struct {
	RegistrationEnergy      int `toml:"registration_energy"`
	ReferralEnergy          int `toml:"referral_energy"`
	AutopostIntervalSeconds int `toml:"autopost_interval_seconds"`
}

type PaymentsConfig struct {
	Token   string `toml:"token"`
	Asset   string `toml:"asset"`
	APIBase string `toml:"api_base"`
}
