package economy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channeladmin/channelbot/channelbot/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), database.NewMemoryStorage(), ServiceConfig{
		BannedWords: []string{"спам"},
	})
	require.NoError(t, err)
	return svc
}

func registerUser(t *testing.T, svc *Service, userID int64) {
	t.Helper()
	_, err := svc.RegisterUser(context.Background(), userID, true, "", "")
	require.NoError(t, err)
}

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// An unsubscribed user is refused and nothing is written.
	_, err := svc.RegisterUser(ctx, 1, false, "alice", "Alice")
	assert.ErrorIs(t, err, ErrSubscriptionRequired)
	_, err = svc.GetUserBalance(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := svc.RegisterUser(ctx, 1, true, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy, user.Energy)
	assert.Equal(t, "alice", user.Username)

	// Registering again never re-grants the starting energy.
	user, err = svc.RegisterUser(ctx, 1, true, "alice2", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy, user.Energy)
	assert.Equal(t, "alice2", user.Username)
	assert.Equal(t, "Alice", user.FullName)
}

func TestRegisterUserKeepsExistingOnRefusal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	registerUser(t, svc, 1)
	_, err := svc.RegisterUser(ctx, 1, false, "other", "")
	assert.ErrorIs(t, err, ErrSubscriptionRequired)

	user, err := svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy, user.Energy)
	assert.Empty(t, user.Username)
}

func TestAwardReferral(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	registerUser(t, svc, 1)

	require.NoError(t, svc.AwardReferral(ctx, 1, 2))
	user, err := svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy+DefaultReferralEnergy, user.Energy)

	// The same pair never pays twice.
	require.NoError(t, svc.AwardReferral(ctx, 1, 2))
	user, err = svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy+DefaultReferralEnergy, user.Energy)

	assert.ErrorIs(t, svc.AwardReferral(ctx, 1, 1), ErrSelfReferral)

	// The referred user exists afterwards even if they never registered.
	_, err = svc.GetUserBalance(ctx, 2)
	assert.NoError(t, err)
}

func TestPurchaseEnergy(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	registerUser(t, svc, 1)

	price, err := svc.PurchaseEnergy(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 249.00, price)

	user, err := svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy+50, user.Energy)

	_, err = svc.PurchaseEnergy(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.SetUserBanned(ctx, 1, true)
	require.NoError(t, err)
	_, err = svc.PurchaseEnergy(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrUserBanned)
}

func TestGoldenCardPurchases(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	registerUser(t, svc, 1)

	price, err := svc.PurchaseGoldenCard(ctx, 1, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3.0, price)

	user, err := svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ActiveGoldenCards(time.Now().UTC()))

	_, err = svc.PurchaseGoldenCard(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestPurchaseGoldenCardWithEnergy(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	registerUser(t, svc, 1)

	cost, err := svc.EnergyCostForGoldenCard(48 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 72, cost)

	spent, err := svc.PurchaseGoldenCardWithEnergy(ctx, 1, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, cost, spent)

	user, err := svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy-cost, user.Energy)
	assert.Equal(t, 1, user.ActiveGoldenCards(time.Now().UTC()))

	// A short balance fails closed: no card, no partial spend.
	_, err = svc.PurchaseGoldenCardWithEnergy(ctx, 1, 48*time.Hour)
	assert.ErrorIs(t, err, ErrInsufficientEnergy)
	user, err = svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistrationEnergy-cost, user.Energy)
	assert.Equal(t, 1, user.ActiveGoldenCards(time.Now().UTC()))
}

func TestCreditEnergy(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.CreditEnergy(ctx, 9, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, user.Energy)

	_, err = svc.CreditEnergy(ctx, 9, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestServiceConfigDefaults(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, database.NewMemoryStorage(), ServiceConfig{
		RegistrationEnergy: 10,
		ReferralEnergy:     5,
	})
	require.NoError(t, err)

	user, err := svc.RegisterUser(ctx, 1, true, "", "")
	require.NoError(t, err)
	assert.Equal(t, 10, user.Energy)

	require.NoError(t, svc.AwardReferral(ctx, 1, 2))
	user, err = svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 15, user.Energy)
}

func TestPricingIsCopyOnRead(t *testing.T) {
	svc := newTestService(t)

	snapshot := svc.Pricing()
	snapshot.EnergyBundles[50] = 1.0

	assert.Equal(t, 249.00, svc.Pricing().EnergyBundles[50])
}

func TestAdminSettings(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	settings, err := svc.UpdatePostPrice(ctx, 35)
	require.NoError(t, err)
	assert.Equal(t, 35, settings.PostEnergyCost)

	_, err = svc.UpdatePostPrice(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidValue)

	// Raising the unit price re-derives the whole price book.
	_, err = svc.UpdateEnergyPrice(ctx, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 498.00, svc.Pricing().EnergyBundles[50])
	assert.Equal(t, 2.0, svc.Pricing().EnergyPricePerUnit)

	_, err = svc.UpdateEnergyPrice(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)

	settings, err = svc.UpdateSubscriptionRequirement(ctx, -100500, "https://t.me/+abc")
	require.NoError(t, err)
	assert.Equal(t, int64(-100500), settings.SubscriptionChatID)

	settings, err = svc.SetAutopostPaused(ctx, true)
	require.NoError(t, err)
	assert.True(t, settings.AutopostPaused)

	settings, err = svc.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.AutopostPaused)
	assert.Equal(t, 35, settings.PostEnergyCost)
}

func TestAdminUserOps(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.SetUserAdmin(ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	user, err = svc.SetUserEnergy(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, user.Energy)

	_, err = svc.SetUserEnergy(ctx, 1, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)

	user, err = svc.AdjustUserEnergy(ctx, 1, -40)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Energy)

	_, err = svc.AdjustUserEnergy(ctx, 1, -3)
	assert.ErrorIs(t, err, ErrInvalidValue)
	user, err = svc.GetUserBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Energy)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	n, err := svc.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTruncateSubject(t *testing.T) {
	assert.Equal(t, "короткая тема", truncateSubject("  короткая тема \n", 64))

	long := truncateSubject("очень длинная тема обращения", 10)
	assert.Equal(t, 10, len([]rune(long)))
	assert.Equal(t, "…", string([]rune(long)[9]))
}
