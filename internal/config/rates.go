package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"holidaylet/internal/dates"
	"holidaylet/internal/pricing"
)

// RateSeed is one rate rule declared in rates.yaml. Key identifies the rule
// across reloads.
type RateSeed struct {
	Key       string  `yaml:"key"`
	StartDate string  `yaml:"start_date"`
	EndDate   string  `yaml:"end_date"`
	Price     float64 `yaml:"price"`
	RateType  string  `yaml:"rate_type"`
	Note      string  `yaml:"note,omitempty"`
}

// RatesConfig is the root of rates.yaml.
type RatesConfig struct {
	Rates []RateSeed `yaml:"rates"`
}

// LoadRatesConfig loads and validates the rates seed file.
func LoadRatesConfig(path string) (*RatesConfig, error) {
	if path == "" {
		path = "configs/rates.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates config: %w", err)
	}

	var cfg RatesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rates config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rates config: %w", err)
	}

	return &cfg, nil
}

// Validate checks every seed with the same rules as rates created by the owner.
func (c *RatesConfig) Validate() error {
	keys := make(map[string]bool)
	for i, s := range c.Rates {
		if s.Key == "" {
			return fmt.Errorf("rates[%d]: key is required", i)
		}
		if keys[s.Key] {
			return fmt.Errorf("rates[%d]: duplicate key '%s'", i, s.Key)
		}
		keys[s.Key] = true

		if _, err := s.Rule(); err != nil {
			return fmt.Errorf("rates[%d] (%s): %w", i, s.Key, err)
		}
	}
	return nil
}

// Rule converts the seed into a validated pricing rule.
func (s RateSeed) Rule() (pricing.Rule, error) {
	iv, err := dates.ParseInterval(s.StartDate, s.EndDate)
	if err != nil {
		return pricing.Rule{}, err
	}
	r := pricing.Rule{Interval: iv, Price: s.Price, Kind: pricing.Kind(s.RateType), Note: s.Note}
	if err := pricing.ValidateRule(&r); err != nil {
		return pricing.Rule{}, err
	}
	return r, nil
}
