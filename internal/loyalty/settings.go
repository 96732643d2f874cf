package loyalty

import (
	"fmt"
	"time"

	"github.com/angelmondragon/stampcard-backend/pkg/config"
)

// Settings carries the loyalty tunables threaded into every service at
// construction time.
type Settings struct {
	MaxStamps    int
	CodeTTL      time.Duration
	CodeLength   int
	CodeAlphabet string
	Location     *time.Location
	HistoryLimit int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxStamps:    6,
		CodeTTL:      15 * time.Minute,
		CodeLength:   6,
		CodeAlphabet: "0123456789",
		Location:     time.UTC,
		HistoryLimit: 10,
	}
}

// SettingsFromConfig converts the loaded configuration section.
func SettingsFromConfig(cfg config.LoyaltyConfig) Settings {
	return Settings{
		MaxStamps:    cfg.MaxStamps,
		CodeTTL:      cfg.CodeTTL,
		CodeLength:   cfg.CodeLength,
		CodeAlphabet: cfg.CodeAlphabet,
		Location:     cfg.Location(),
		HistoryLimit: cfg.HistoryLimit,
	}
}

func (s Settings) validate() error {
	if s.MaxStamps <= 0 {
		return fmt.Errorf("max stamps must be positive")
	}
	if s.CodeTTL <= 0 {
		return fmt.Errorf("code ttl must be positive")
	}
	if s.CodeLength <= 0 || s.CodeLength > config.MaxCodeLength {
		return fmt.Errorf("code length must be between 1 and %d", config.MaxCodeLength)
	}
	if len([]rune(s.CodeAlphabet)) < 2 {
		return fmt.Errorf("code alphabet needs at least two symbols")
	}
	return nil
}
