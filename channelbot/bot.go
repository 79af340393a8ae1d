package channelbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/channeladmin/channelbot/channelbot/database"
	"github.com/channeladmin/channelbot/channelbot/economy"
	"github.com/channeladmin/channelbot/channelbot/payments"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// Bot bundles the wired core: storage, the economy service, billing and the
// autopost scheduler. The chat transport drives it from outside.
type Bot struct {
	Cfg     Config
	Version string
	Commit  string

	Storage   database.Storage
	DB        *database.DB
	Service   *economy.Service
	Billing   *economy.Billing
	Scheduler *economy.AutopostScheduler
}

// Setup opens the configured storage backend and builds the service stack.
// The publisher is injected by the transport layer; a nil gateway disables
// billing flows.
func (b *Bot) Setup(ctx context.Context, publisher economy.Publisher) error {
	storage, err := b.openStorage(ctx)
	if err != nil {
		return err
	}
	b.Storage = storage

	svc, err := economy.NewService(ctx, storage, economy.ServiceConfig{
		Pricing:            b.Cfg.Pricing,
		BannedWords:        b.Cfg.Filter.BannedWords,
		RegistrationEnergy: b.Cfg.Economy.RegistrationEnergy,
		ReferralEnergy:     b.Cfg.Economy.ReferralEnergy,
	})
	if err != nil {
		return fmt.Errorf("failed to build economy service: %w", err)
	}
	b.Service = svc

	if b.Cfg.Payments.Token != "" {
		gateway := payments.NewCryptoPayClient(
			b.Cfg.Payments.Token,
			b.Cfg.Payments.Asset,
			b.Cfg.Payments.APIBase,
		)
		b.Billing = economy.NewBilling(svc, gateway)
	} else {
		slog.Warn("Payments token not configured, billing disabled",
			slog.String("type", "pay"))
	}

	interval := time.Duration(b.Cfg.Economy.AutopostIntervalSeconds) * time.Second
	b.Scheduler = economy.NewAutopostScheduler(svc, publisher, interval)
	return nil
}

func (b *Bot) openStorage(ctx context.Context) (database.Storage, error) {
	switch b.Cfg.Storage.Driver {
	case "", "json":
		path := b.Cfg.Storage.Path
		if path == "" {
			path = "channelbot.json"
		}
		return database.NewJSONStorage(path), nil
	case "memory":
		return database.NewMemoryStorage(), nil
	case "postgres":
		db, err := database.NewDB(ctx, b.Cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.DB = db
		storage := database.NewPostgresStorage(db)
		if err := storage.InitSchema(ctx); err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", b.Cfg.Storage.Driver)
	}
}

func (b *Bot) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
}
