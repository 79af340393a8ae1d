// Package economy holds the channel economy orchestrator: every state
// transition over users, posts, golden cards, invoices, tickets and settings
// goes through the Service, which enforces the invariants storage alone
// cannot.
package economy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/channeladmin/channelbot/channelbot/database"
	"github.com/channeladmin/channelbot/channelbot/database/models"
	"github.com/channeladmin/channelbot/channelbot/filter"
)

const (
	DefaultRegistrationEnergy = 100
	DefaultReferralEnergy     = 50
)

var (
	ErrSubscriptionRequired = errors.New("user must subscribe to sponsors before registering")
	ErrUserBanned           = errors.New("user is banned")
	ErrSelfReferral         = errors.New("user cannot refer themselves")
	ErrInvalidValue         = errors.New("value out of allowed range")
	ErrEmptyMessage         = errors.New("message must not be empty")
	ErrPermissionDenied     = errors.New("action not permitted for this user")

	// Shared sentinels re-exported so callers only import this package.
	ErrNotFound           = database.ErrNotFound
	ErrInsufficientEnergy = models.ErrInsufficientEnergy
	ErrContentRejected    = filter.ErrContentRejected
)

// ServiceConfig carries the boot-time knobs; zero values fall back to the
// defaults the original deployment ran with.
type ServiceConfig struct {
	Pricing            PricingConfig
	BannedWords        []string
	RegistrationEnergy int
	ReferralEnergy     int
}

// Service serializes every read-modify-write on the storage instance behind
// one mutex, so a concurrently dispatching transport cannot produce lost
// updates. Network calls (gateway, message delivery) never happen while the
// lock is held.
type Service struct {
	mu sync.Mutex

	storage     database.Storage
	filter      *filter.Filter
	calc        *Calculator
	basePricing PricingConfig

	registrationEnergy int
	referralEnergy     int
}

func NewService(ctx context.Context, storage database.Storage, cfg ServiceConfig) (*Service, error) {
	if cfg.Pricing.EnergyPricePerUnit == 0 && cfg.Pricing.EnergyBundles == nil {
		cfg.Pricing = DefaultPricingConfig()
	}
	if cfg.RegistrationEnergy == 0 {
		cfg.RegistrationEnergy = DefaultRegistrationEnergy
	}
	if cfg.ReferralEnergy == 0 {
		cfg.ReferralEnergy = DefaultReferralEnergy
	}
	if cfg.BannedWords == nil {
		cfg.BannedWords = filter.DefaultBannedWords()
	}

	s := &Service{
		storage:            storage,
		filter:             filter.New(cfg.BannedWords),
		basePricing:        cfg.Pricing,
		registrationEnergy: cfg.RegistrationEnergy,
		referralEnergy:     cfg.ReferralEnergy,
	}

	settings, err := storage.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	s.applySettings(settings)
	return s, nil
}

// applySettings swaps in a freshly derived pricing snapshot. Callers must
// hold the lock (or be in the constructor).
func (s *Service) applySettings(settings *models.BotSettings) {
	s.calc = NewCalculator(DeriveSnapshot(settings, s.basePricing))
}

// Pricing returns the current pricing snapshot.
func (s *Service) Pricing() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calc.Snapshot()
}

// RegisterUser creates the user with the starting energy if absent and
// upserts the optional profile fields. Unsubscribed users are refused and
// nothing is written.
func (s *Service) RegisterUser(ctx context.Context, userID int64, subscribed bool, username, fullName string) (*models.User, error) {
	if !subscribed {
		return nil, ErrSubscriptionRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.storage.GetUser(ctx, userID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		user = models.NewUser(userID)
		if err := user.AddEnergy(s.registrationEnergy); err != nil {
			return nil, err
		}
		slog.Info("Registered new user",
			slog.String("type", "cmd"),
			slog.Int64("user_id", userID),
			slog.Int("energy", user.Energy))
	case err != nil:
		return nil, err
	}

	if username != "" {
		user.Username = username
	}
	if fullName != "" {
		user.FullName = fullName
	}
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// getOrCreateUser is the lazy upsert every economy operation goes through.
// The lock must already be held.
func (s *Service) getOrCreateUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.storage.GetUser(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		user = models.NewUser(userID)
		if err := s.storage.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	return user, err
}

func (s *Service) GetUserBalance(ctx context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.GetUser(ctx, userID)
}

// PurchaseEnergy credits the amount and returns the price charged for it.
func (s *Service) PurchaseEnergy(ctx context.Context, userID int64, amount int) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.IsBanned {
		return 0, ErrUserBanned
	}
	price := s.calc.QuoteEnergy(amount)
	if err := user.AddEnergy(amount); err != nil {
		return 0, err
	}
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return 0, err
	}
	return price, nil
}

// CreditEnergy adds energy without charging, e.g. after a settled invoice.
func (s *Service) CreditEnergy(ctx context.Context, userID int64, amount int) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditEnergy(ctx, userID, amount)
}

func (s *Service) creditEnergy(ctx context.Context, userID int64, amount int) (*models.User, error) {
	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	if err := user.AddEnergy(amount); err != nil {
		return nil, err
	}
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AwardReferral credits the referrer once per referred user; repeated calls
// for the same pair are no-ops.
func (s *Service) AwardReferral(ctx context.Context, referrerID, referredID int64) error {
	if referrerID == referredID {
		return ErrSelfReferral
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	referrer, err := s.getOrCreateUser(ctx, referrerID)
	if err != nil {
		return err
	}
	if _, err := s.getOrCreateUser(ctx, referredID); err != nil {
		return err
	}
	if referrer.HasReferred(referredID) {
		return nil
	}
	referrer.ReferredUsers[referredID] = true
	if err := referrer.AddEnergy(s.referralEnergy); err != nil {
		return err
	}
	return s.storage.SaveUser(ctx, referrer)
}

// GrantGoldenCard appends a card without charging.
func (s *Service) GrantGoldenCard(ctx context.Context, userID int64, duration time.Duration) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantGoldenCard(ctx, userID, duration)
}

func (s *Service) grantGoldenCard(ctx context.Context, userID int64, duration time.Duration) (*models.User, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	user.AddGoldenCard(models.NewGoldenCard(duration, time.Now().UTC()))
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// PurchaseGoldenCard grants a card and returns the money price quoted.
func (s *Service) PurchaseGoldenCard(ctx context.Context, userID int64, duration time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.calc.QuoteGoldenCard(duration)
	if err != nil {
		return 0, err
	}
	if _, err := s.grantGoldenCard(ctx, userID, duration); err != nil {
		return 0, err
	}
	return price, nil
}

// EnergyCostForGoldenCard quotes the card price in whole energy units.
func (s *Service) EnergyCostForGoldenCard(duration time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calc.Snapshot().EnergyCostForGoldenCard(duration)
}

// PurchaseGoldenCardWithEnergy pays for the card from the user's energy
// balance and returns the energy spent. The balance is left untouched when
// anything fails.
func (s *Service) PurchaseGoldenCardWithEnergy(ctx context.Context, userID int64, duration time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost, err := s.calc.Snapshot().EnergyCostForGoldenCard(duration)
	if err != nil {
		return 0, err
	}
	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.IsBanned {
		return 0, ErrUserBanned
	}
	if err := user.SpendEnergy(cost); err != nil {
		return 0, err
	}
	user.AddGoldenCard(models.NewGoldenCard(duration, time.Now().UTC()))
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return 0, err
	}
	return cost, nil
}

func truncateSubject(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
