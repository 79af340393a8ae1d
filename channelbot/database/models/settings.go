package models

const (
	DefaultPostEnergyCost     = 20
	DefaultEnergyPricePerUnit = 1.0
)

// BotSettings is the singleton, admin-tunable runtime configuration. Every
// mutation is persisted immediately by the storage layer.
type BotSettings struct {
	AutopostPaused         bool    `json:"autopost_paused"`
	PostEnergyCost         int     `json:"post_energy_cost"`
	EnergyPricePerUnit     float64 `json:"energy_price_per_unit"`
	SubscriptionChatID     int64   `json:"subscription_chat_id,omitempty"`
	SubscriptionInviteLink string  `json:"subscription_invite_link,omitempty"`
}

func DefaultSettings() *BotSettings {
	return &BotSettings{
		PostEnergyCost:     DefaultPostEnergyCost,
		EnergyPricePerUnit: DefaultEnergyPricePerUnit,
	}
}

func (s *BotSettings) Clone() *BotSettings {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
