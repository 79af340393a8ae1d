package economy

import (
	"errors"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

var (
	ErrInvalidDuration     = errors.New("golden card duration must be positive")
	ErrInvalidExchangeRate = errors.New("exchange rate must be positive")
)

const quoteCacheSize = 512

// EnergyBundle is a discounted fixed-size energy pack.
type EnergyBundle struct {
	Amount int     `toml:"amount"`
	Price  float64 `toml:"price"`
}

// PricingConfig is the static price book the process boots with. Runtime
// settings changes re-derive a Snapshot from it rather than mutating it.
type PricingConfig struct {
	EnergyPricePerUnit    float64        `toml:"energy_price_per_unit"`
	EnergyBundles         []EnergyBundle `toml:"energy_bundles"`
	GoldenCardHourlyPrice float64        `toml:"golden_card_hourly_price"`
	RublesPerUSD          float64        `toml:"rubles_per_usd"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		EnergyPricePerUnit: 1.0,
		EnergyBundles: []EnergyBundle{
			{Amount: 50, Price: 249.00},
			{Amount: 100, Price: 499.00},
			{Amount: 300, Price: 1499.00},
		},
		GoldenCardHourlyPrice: 1.5,
		RublesPerUSD:          66.4,
	}
}

// Snapshot is an immutable view of current prices. The service swaps in a
// fresh one whenever settings load or change; nothing mutates one in place.
type Snapshot struct {
	EnergyPricePerUnit    float64
	EnergyBundles         map[int]float64
	GoldenCardHourlyPrice float64
	RublesPerUSD          float64
}

// DeriveSnapshot builds the effective price book: the per-unit price comes
// from settings and bundle prices rescale proportionally to the unit-price
// change against the base book.
func DeriveSnapshot(settings *models.BotSettings, base PricingConfig) Snapshot {
	unit := settings.EnergyPricePerUnit
	if unit <= 0 {
		unit = base.EnergyPricePerUnit
	}
	scale := 1.0
	if base.EnergyPricePerUnit > 0 {
		scale = unit / base.EnergyPricePerUnit
	}
	bundles := make(map[int]float64, len(base.EnergyBundles))
	for _, b := range base.EnergyBundles {
		bundles[b.Amount] = math.Round(b.Price*scale*100) / 100
	}
	return Snapshot{
		EnergyPricePerUnit:    unit,
		EnergyBundles:         bundles,
		GoldenCardHourlyPrice: base.GoldenCardHourlyPrice,
		RublesPerUSD:          base.RublesPerUSD,
	}
}

// PriceForEnergy returns the bundle price when amount matches a configured
// bundle, otherwise amount times the per-unit price.
func (s Snapshot) PriceForEnergy(amount int) float64 {
	if price, ok := s.EnergyBundles[amount]; ok {
		return price
	}
	return s.EnergyPricePerUnit * float64(amount)
}

func (s Snapshot) PriceForGoldenCard(duration time.Duration) (float64, error) {
	hours := duration.Hours()
	if hours <= 0 {
		return 0, ErrInvalidDuration
	}
	return s.GoldenCardHourlyPrice * hours, nil
}

// EnergyCostForGoldenCard converts a golden-card price into whole energy
// units, rounded up.
func (s Snapshot) EnergyCostForGoldenCard(duration time.Duration) (int, error) {
	price, err := s.PriceForGoldenCard(duration)
	if err != nil {
		return 0, err
	}
	if s.EnergyPricePerUnit <= 0 {
		return 0, ErrInvalidExchangeRate
	}
	return int(math.Ceil(price / s.EnergyPricePerUnit)), nil
}

// ConvertRubToUsd treats non-positive amounts as zero rather than failing.
func (s Snapshot) ConvertRubToUsd(rub float64) (float64, error) {
	if rub <= 0 {
		return 0, nil
	}
	if s.RublesPerUSD <= 0 {
		return 0, ErrInvalidExchangeRate
	}
	return rub / s.RublesPerUSD, nil
}

func (s Snapshot) ConvertUsdToRub(usd float64) (float64, error) {
	if usd <= 0 {
		return 0, nil
	}
	if s.RublesPerUSD <= 0 {
		return 0, ErrInvalidExchangeRate
	}
	return usd * s.RublesPerUSD, nil
}

// Calculator caches quotes computed off a Snapshot. Quotes for the same
// duration repeat constantly in the purchase keyboards, so they are kept in
// a bounded LRU; rebuilding the Calculator on a settings change drops every
// stale entry at once.
type Calculator struct {
	snapshot Snapshot
	quotes   *lru.Cache
}

func NewCalculator(snapshot Snapshot) *Calculator {
	cache, _ := lru.New(quoteCacheSize)
	return &Calculator{snapshot: snapshot, quotes: cache}
}

// Snapshot returns a copy with its own bundle map; callers can hold or
// mutate it without touching live pricing.
func (c *Calculator) Snapshot() Snapshot {
	snapshot := c.snapshot
	snapshot.EnergyBundles = make(map[int]float64, len(c.snapshot.EnergyBundles))
	for amount, price := range c.snapshot.EnergyBundles {
		snapshot.EnergyBundles[amount] = price
	}
	return snapshot
}

func (c *Calculator) QuoteEnergy(amount int) float64 {
	if cached, ok := c.quotes.Get(energyKey(amount)); ok {
		return cached.(float64)
	}
	price := c.snapshot.PriceForEnergy(amount)
	c.quotes.Add(energyKey(amount), price)
	return price
}

func (c *Calculator) QuoteGoldenCard(duration time.Duration) (float64, error) {
	if cached, ok := c.quotes.Get(goldenKey(duration)); ok {
		return cached.(float64), nil
	}
	price, err := c.snapshot.PriceForGoldenCard(duration)
	if err != nil {
		return 0, err
	}
	c.quotes.Add(goldenKey(duration), price)
	return price, nil
}

type quoteKey struct {
	kind  string
	value int64
}

func energyKey(amount int) quoteKey {
	return quoteKey{kind: "energy", value: int64(amount)}
}

func goldenKey(duration time.Duration) quoteKey {
	return quoteKey{kind: "golden", value: int64(duration)}
}
