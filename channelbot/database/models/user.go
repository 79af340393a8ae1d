package models

import (
	"errors"
	"time"
)

var (
	ErrNegativeEnergy     = errors.New("energy amount cannot be negative")
	ErrInvalidEnergySpend = errors.New("energy spend must be positive")
	ErrInsufficientEnergy = errors.New("not enough energy")
)

// User is a registered channel member. Energy is the spendable balance and
// never goes negative; spend operations fail closed instead of clamping.
type User struct {
	UserID        int64          `json:"user_id"`
	Energy        int            `json:"energy"`
	GoldenCards   []GoldenCard   `json:"golden_cards"`
	ReferredUsers map[int64]bool `json:"referred_users"`
	IsBanned      bool           `json:"is_banned"`
	IsAdmin       bool           `json:"is_admin"`
	Username      string         `json:"username,omitempty"`
	FullName      string         `json:"full_name,omitempty"`
}

func NewUser(userID int64) *User {
	return &User{
		UserID:        userID,
		GoldenCards:   []GoldenCard{},
		ReferredUsers: map[int64]bool{},
	}
}

func (u *User) AddEnergy(amount int) error {
	if amount < 0 {
		return ErrNegativeEnergy
	}
	u.Energy += amount
	return nil
}

func (u *User) SpendEnergy(amount int) error {
	if amount <= 0 {
		return ErrInvalidEnergySpend
	}
	if u.Energy < amount {
		return ErrInsufficientEnergy
	}
	u.Energy -= amount
	return nil
}

func (u *User) AddGoldenCard(card GoldenCard) {
	u.GoldenCards = append(u.GoldenCards, card)
}

// PopActiveGoldenCard removes and returns the first card in list order that
// has not yet expired. Expired cards are skipped but left in place.
func (u *User) PopActiveGoldenCard(now time.Time) (GoldenCard, bool) {
	for i, card := range u.GoldenCards {
		if card.ExpiresAt().After(now) {
			u.GoldenCards = append(u.GoldenCards[:i], u.GoldenCards[i+1:]...)
			return card, true
		}
	}
	return GoldenCard{}, false
}

// ActiveGoldenCards counts cards that are still valid at now.
func (u *User) ActiveGoldenCards(now time.Time) int {
	n := 0
	for _, card := range u.GoldenCards {
		if card.ExpiresAt().After(now) {
			n++
		}
	}
	return n
}

func (u *User) HasReferred(userID int64) bool {
	return u.ReferredUsers[userID]
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.GoldenCards = make([]GoldenCard, len(u.GoldenCards))
	copy(clone.GoldenCards, u.GoldenCards)
	clone.ReferredUsers = make(map[int64]bool, len(u.ReferredUsers))
	for id := range u.ReferredUsers {
		clone.ReferredUsers[id] = true
	}
	return &clone
}

// GoldenCard is a time-boxed pinning entitlement owned by exactly one user.
// Durations are persisted as whole seconds.
type GoldenCard struct {
	Duration    Seconds   `json:"duration"`
	PurchasedAt time.Time `json:"purchased_at"`
}

func NewGoldenCard(duration time.Duration, now time.Time) GoldenCard {
	return GoldenCard{Duration: Seconds(duration), PurchasedAt: now}
}

func (c GoldenCard) ExpiresAt() time.Time {
	return c.PurchasedAt.Add(time.Duration(c.Duration))
}
