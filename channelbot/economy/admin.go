package economy

import (
	"context"
	"log/slog"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// Settings returns the current persisted settings.
func (s *Service) Settings(ctx context.Context) (*models.BotSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.GetSettings(ctx)
}

// UpdatePostPrice sets the energy cost of one post.
func (s *Service) UpdatePostPrice(ctx context.Context, cost int) (*models.BotSettings, error) {
	if cost <= 0 {
		return nil, ErrInvalidValue
	}
	return s.mutateSettings(ctx, func(settings *models.BotSettings) {
		settings.PostEnergyCost = cost
	})
}

// UpdateEnergyPrice sets the per-unit energy price and re-derives the whole
// pricing snapshot from it.
func (s *Service) UpdateEnergyPrice(ctx context.Context, price float64) (*models.BotSettings, error) {
	if price <= 0 {
		return nil, ErrInvalidValue
	}
	return s.mutateSettings(ctx, func(settings *models.BotSettings) {
		settings.EnergyPricePerUnit = price
	})
}

// UpdateSubscriptionRequirement configures (or clears, with zero values) the
// sponsor-subscription gate.
func (s *Service) UpdateSubscriptionRequirement(ctx context.Context, chatID int64, inviteLink string) (*models.BotSettings, error) {
	return s.mutateSettings(ctx, func(settings *models.BotSettings) {
		settings.SubscriptionChatID = chatID
		settings.SubscriptionInviteLink = inviteLink
	})
}

// SetAutopostPaused toggles the scheduler pause flag.
func (s *Service) SetAutopostPaused(ctx context.Context, paused bool) (*models.BotSettings, error) {
	return s.mutateSettings(ctx, func(settings *models.BotSettings) {
		settings.AutopostPaused = paused
	})
}

// mutateSettings loads, mutates, persists and re-derives pricing in one
// locked step so the snapshot can never drift from the stored settings.
func (s *Service) mutateSettings(ctx context.Context, mutate func(*models.BotSettings)) (*models.BotSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.storage.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	mutate(settings)
	if err := s.storage.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	s.applySettings(settings)
	return settings, nil
}

func (s *Service) SetUserAdmin(ctx context.Context, userID int64, admin bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsAdmin = admin
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetUserBanned flips the soft-disable flag. Banning also cancels the user's
// posts that are still in flight.
func (s *Service) SetUserBanned(ctx context.Context, userID int64, banned bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsBanned = banned
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	if banned {
		cancelled, err := s.cancelPostsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		slog.Info("User banned",
			slog.String("type", "cmd"),
			slog.Int64("user_id", userID),
			slog.Int("posts_cancelled", cancelled))
	}
	return user, nil
}

// SetUserEnergy overwrites the balance; negative values are refused.
func (s *Service) SetUserEnergy(ctx context.Context, userID int64, energy int) (*models.User, error) {
	if energy < 0 {
		return nil, ErrInvalidValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Energy = energy
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AdjustUserEnergy applies a signed delta; it fails when the result would be
// negative and leaves the balance unchanged.
func (s *Service) AdjustUserEnergy(ctx context.Context, userID int64, delta int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Energy+delta < 0 {
		return nil, ErrInvalidValue
	}
	user.Energy += delta
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListUsers(ctx)
}

func (s *Service) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.CountUsers(ctx)
}

func (s *Service) CountPosts(ctx context.Context, statuses ...models.PostStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.CountPosts(ctx, statuses...)
}
