package pricing

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Season tier names.
const (
	TierPeak = "peak"
	TierHigh = "high"
	TierLow  = "low"
)

// Band is a contiguous range of ISO weeks billed at one nightly rate.
type Band struct {
	Tier     string          `yaml:"tier"`
	FromWeek int             `yaml:"from_week"`
	ToWeek   int             `yaml:"to_week"`
	Nightly  decimal.Decimal `yaml:"nightly"`
}

// Contains reports whether an ISO week falls inside the band (inclusive).
func (b Band) Contains(week int) bool {
	return week >= b.FromWeek && week <= b.ToWeek
}

// Tariff is the yearly price list. Bands are evaluated in order; the first
// matching band wins and weeks outside every band use the base rate.
type Tariff struct {
	Currency    string          `yaml:"currency"`
	Bands       []Band          `yaml:"bands"`
	BaseTier    string          `yaml:"base_tier"`
	BaseNightly decimal.Decimal `yaml:"base_nightly"`
	Parking     decimal.Decimal `yaml:"parking_nightly"`
}

// DefaultTariff returns the cooperative's standard price list:
// tennis weeks 28-29 at 800, summer weeks 24-32 at 600, otherwise 400,
// parking 75 per night.
func DefaultTariff() *Tariff {
	return &Tariff{
		Currency: "SEK",
		Bands: []Band{
			{Tier: TierPeak, FromWeek: 28, ToWeek: 29, Nightly: decimal.NewFromInt(800)},
			{Tier: TierHigh, FromWeek: 24, ToWeek: 32, Nightly: decimal.NewFromInt(600)},
		},
		BaseTier:    TierLow,
		BaseNightly: decimal.NewFromInt(400),
		Parking:     decimal.NewFromInt(75),
	}
}

// Validate checks week bounds and rates.
func (t *Tariff) Validate() error {
	if t.BaseNightly.IsNegative() {
		return errors.New("base_nightly must not be negative")
	}
	if t.Parking.IsNegative() {
		return errors.New("parking_nightly must not be negative")
	}
	for i, b := range t.Bands {
		if b.Tier == "" {
			return fmt.Errorf("band %d: tier is required", i)
		}
		if b.FromWeek < 1 || b.FromWeek > 53 || b.ToWeek < 1 || b.ToWeek > 53 {
			return fmt.Errorf("band %s: weeks must be within 1..53", b.Tier)
		}
		if b.FromWeek > b.ToWeek {
			return fmt.Errorf("band %s: from_week %d is after to_week %d", b.Tier, b.FromWeek, b.ToWeek)
		}
		if b.Nightly.IsNegative() {
			return fmt.Errorf("band %s: nightly must not be negative", b.Tier)
		}
	}
	return nil
}

func (t *Tariff) applyDefaults() {
	if t.Currency == "" {
		t.Currency = "SEK"
	}
	if t.BaseTier == "" {
		t.BaseTier = TierLow
	}
}

// ParseTariff decodes and validates a YAML price list.
func ParseTariff(data []byte) (*Tariff, error) {
	var t Tariff
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tariff: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate tariff: %w", err)
	}
	return &t, nil
}

// LoadTariff reads a price list from a YAML file.
func LoadTariff(path string) (*Tariff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tariff: %w", err)
	}
	return ParseTariff(data)
}
