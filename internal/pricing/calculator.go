package pricing

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the nightly rate that applies to a booking starting on a given day.
type Quote struct {
	Week    int
	Tier    string
	Nightly decimal.Decimal
}

// Calculator maps check-in dates to nightly rates. The tariff can be swapped
// at runtime; every quote sees one consistent tariff.
type Calculator struct {
	tariff atomic.Pointer[Tariff]
}

// NewCalculator creates a calculator; a nil tariff selects DefaultTariff.
func NewCalculator(t *Tariff) *Calculator {
	if t == nil {
		t = DefaultTariff()
	}
	c := &Calculator{}
	c.tariff.Store(t)
	return c
}

// SetTariff replaces the active price list.
func (c *Calculator) SetTariff(t *Tariff) {
	if t != nil {
		c.tariff.Store(t)
	}
}

// Tariff returns the active price list.
func (c *Calculator) Tariff() *Tariff {
	return c.tariff.Load()
}

// Quote prices a booking by the ISO-8601 week of its check-in day.
func (c *Calculator) Quote(start time.Time) Quote {
	t := c.tariff.Load()
	_, week := start.ISOWeek()
	for _, b := range t.Bands {
		if b.Contains(week) {
			return Quote{Week: week, Tier: b.Tier, Nightly: b.Nightly}
		}
	}
	return Quote{Week: week, Tier: t.BaseTier, Nightly: t.BaseNightly}
}

// ParkingRate is the flat per-night parking surcharge.
func (c *Calculator) ParkingRate() decimal.Decimal {
	return c.tariff.Load().Parking
}

// Currency of the active tariff.
func (c *Calculator) Currency() string {
	return c.tariff.Load().Currency
}
