package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

func TestDeriveSnapshot(t *testing.T) {
	base := DefaultPricingConfig()

	snapshot := DeriveSnapshot(models.DefaultSettings(), base)
	assert.Equal(t, 1.0, snapshot.EnergyPricePerUnit)
	assert.Equal(t, 249.00, snapshot.EnergyBundles[50])
	assert.Equal(t, 499.00, snapshot.EnergyBundles[100])
	assert.Equal(t, 1499.00, snapshot.EnergyBundles[300])

	// Doubling the unit price rescales every bundle proportionally.
	settings := models.DefaultSettings()
	settings.EnergyPricePerUnit = 2.0
	snapshot = DeriveSnapshot(settings, base)
	assert.Equal(t, 2.0, snapshot.EnergyPricePerUnit)
	assert.Equal(t, 498.00, snapshot.EnergyBundles[50])
	assert.Equal(t, 998.00, snapshot.EnergyBundles[100])
	assert.Equal(t, 2998.00, snapshot.EnergyBundles[300])

	// A zero settings price falls back to the base book unchanged.
	settings.EnergyPricePerUnit = 0
	snapshot = DeriveSnapshot(settings, base)
	assert.Equal(t, 1.0, snapshot.EnergyPricePerUnit)
	assert.Equal(t, 249.00, snapshot.EnergyBundles[50])
}

func TestPriceForEnergy(t *testing.T) {
	snapshot := DeriveSnapshot(models.DefaultSettings(), DefaultPricingConfig())

	assert.Equal(t, 249.00, snapshot.PriceForEnergy(50))
	assert.Equal(t, 7.0, snapshot.PriceForEnergy(7))
}

func TestPriceForGoldenCard(t *testing.T) {
	snapshot := DeriveSnapshot(models.DefaultSettings(), DefaultPricingConfig())

	price, err := snapshot.PriceForGoldenCard(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3.0, price)

	_, err = snapshot.PriceForGoldenCard(0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = snapshot.PriceForGoldenCard(-time.Hour)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestEnergyCostForGoldenCard(t *testing.T) {
	snapshot := DeriveSnapshot(models.DefaultSettings(), DefaultPricingConfig())

	// 1h costs 1.5 roubles at 1.0 per unit, rounded up to whole energy.
	cost, err := snapshot.EnergyCostForGoldenCard(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, cost)

	cost, err = snapshot.EnergyCostForGoldenCard(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, cost)

	_, err = snapshot.EnergyCostForGoldenCard(0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	snapshot.EnergyPricePerUnit = 0
	_, err = snapshot.EnergyCostForGoldenCard(time.Hour)
	assert.ErrorIs(t, err, ErrInvalidExchangeRate)
}

func TestCurrencyConversion(t *testing.T) {
	snapshot := DeriveSnapshot(models.DefaultSettings(), DefaultPricingConfig())

	usd, err := snapshot.ConvertRubToUsd(664)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, usd, 1e-9)

	rub, err := snapshot.ConvertUsdToRub(10)
	require.NoError(t, err)
	assert.InDelta(t, 664.0, rub, 1e-9)

	usd, err = snapshot.ConvertRubToUsd(-5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, usd)

	snapshot.RublesPerUSD = 0
	_, err = snapshot.ConvertRubToUsd(100)
	assert.ErrorIs(t, err, ErrInvalidExchangeRate)
	_, err = snapshot.ConvertUsdToRub(100)
	assert.ErrorIs(t, err, ErrInvalidExchangeRate)
}

func TestCalculatorQuotes(t *testing.T) {
	calc := NewCalculator(DeriveSnapshot(models.DefaultSettings(), DefaultPricingConfig()))

	assert.Equal(t, 249.00, calc.QuoteEnergy(50))
	// Second quote is served from the cache and must agree.
	assert.Equal(t, 249.00, calc.QuoteEnergy(50))

	price, err := calc.QuoteGoldenCard(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1.5, price)
	price, err = calc.QuoteGoldenCard(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1.5, price)

	_, err = calc.QuoteGoldenCard(0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestCalculatorSnapshotIsIndependent(t *testing.T) {
	calc := NewCalculator(DeriveSnapshot(models.DefaultSettings(), DefaultPricingConfig()))

	snapshot := calc.Snapshot()
	snapshot.EnergyBundles[50] = 1.0
	delete(snapshot.EnergyBundles, 100)

	assert.Equal(t, 249.00, calc.Snapshot().EnergyBundles[50])
	assert.Equal(t, 499.00, calc.Snapshot().PriceForEnergy(100))
}
