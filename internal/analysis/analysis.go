// Package analysis computes price-change and volatility statistics over the
// append-only price ledger. All analyses are read-only and deterministic:
// identical ledger state always produces identical results.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"bleumart/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Policy defaults and bounds for analysis parameters.
const (
	DefaultDaysBack = 30
	MinDaysBack     = 1
	MaxDaysBack     = 365

	DefaultMinChangePercent = 1.0
	MinMinChangePercent     = 0.1

	DefaultLimit = 50
	MinLimit     = 1
	MaxLimit     = 1000
)

// Change classifications.
const (
	ClassIncrease = "INCREASE"
	ClassDecrease = "DECREASE"
)

// Analysis modes.
const (
	ModeChanges    = "changes"
	ModeDrops      = "drops"
	ModeIncreases  = "increases"
	ModeVolatility = "volatility"
)

// ValidationError reports a rejected analysis parameter. It surfaces to the
// caller directly and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Params are caller-supplied analysis knobs. Zero values take policy
// defaults; out-of-bounds values are rejected.
type Params struct {
	DaysBack         int
	MinChangePercent float64
	Limit            int
	Mode             string
}

// Normalize applies defaults and validates bounds.
func (p *Params) Normalize() error {
	if p.DaysBack == 0 {
		p.DaysBack = DefaultDaysBack
	}
	if p.DaysBack < MinDaysBack || p.DaysBack > MaxDaysBack {
		return &ValidationError{Field: "days_back", Message: fmt.Sprintf("must be between %d and %d", MinDaysBack, MaxDaysBack)}
	}
	if p.MinChangePercent == 0 {
		p.MinChangePercent = DefaultMinChangePercent
	}
	if p.MinChangePercent < MinMinChangePercent {
		return &ValidationError{Field: "min_change_percent", Message: fmt.Sprintf("must be at least %g", MinMinChangePercent)}
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < MinLimit || p.Limit > MaxLimit {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between %d and %d", MinLimit, MaxLimit)}
	}
	if p.Mode == "" {
		p.Mode = ModeChanges
	}
	switch p.Mode {
	case ModeChanges, ModeDrops, ModeIncreases, ModeVolatility:
	default:
		return &ValidationError{Field: "type", Message: "must be one of changes, drops, increases, volatility"}
	}
	return nil
}

// ChangeResult is one variation's most recent price movement inside the
// lookback window.
type ChangeResult struct {
	SKU            string          `json:"sku"`
	Product        string          `json:"product"`
	Variation      string          `json:"variation"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PreviousPrice  decimal.Decimal `json:"previous_price"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	ChangePercent  float64         `json:"change_percent"`
	Classification string          `json:"classification"`
	ChangedAt      time.Time       `json:"changed_at"`
	EntryCount     int             `json:"entry_count"`
}

// VolatilityResult is one variation's min/max spread over its whole history.
type VolatilityResult struct {
	SKU               string          `json:"sku"`
	Product           string          `json:"product"`
	Variation         string          `json:"variation"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	MinPrice          decimal.Decimal `json:"min_price"`
	MaxPrice          decimal.Decimal `json:"max_price"`
	VolatilityPercent float64         `json:"volatility_percent"`
	EntryCount        int             `json:"entry_count"`
}

// SummaryStats are aggregate ledger counts over the requested window.
type SummaryStats struct {
	TotalVariations int `json:"total_variations"`
	NoHistory       int `json:"no_history"`
	SingleEntry     int `json:"single_entry"`
	MultipleEntries int `json:"multiple_entries"`
	RecentDrops     int `json:"recent_drops"`
	RecentIncreases int `json:"recent_increases"`
	DaysBack        int `json:"days_back"`
}

// Analyzer reads the price ledger across the variation population.
type Analyzer struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Analyzer {
	return &Analyzer{db: db}
}

// loadVariations fetches all variations with their product and full ledger,
// entries newest first. Iteration order (variation id) is the stable
// tie-break for all result sorts.
func (a *Analyzer) loadVariations() ([]models.ProductVariation, error) {
	var variations []models.ProductVariation
	err := a.db.
		Preload("Product").
		Preload("PriceEntries", func(db *gorm.DB) *gorm.DB {
			return db.Order("recorded_at DESC, id DESC")
		}).
		Order("id").
		Find(&variations).Error
	if err != nil {
		return nil, err
	}
	return variations, nil
}

// entriesWithin filters a newest-first slice down to entries inside the
// lookback window, preserving order.
func entriesWithin(entries []models.PriceEntry, cutoff time.Time) []models.PriceEntry {
	var windowed []models.PriceEntry
	for _, e := range entries {
		if !e.RecordedAt.Before(cutoff) {
			windowed = append(windowed, e)
		}
	}
	return windowed
}

// changeBetween computes the movement between the two most recent windowed
// entries. ok=false when the change is undefined (previous price <= 0).
func changeBetween(latest, previous models.PriceEntry) (amount decimal.Decimal, percent float64, ok bool) {
	if !previous.Price.IsPositive() {
		return decimal.Zero, 0, false
	}
	amount = latest.Price.Sub(previous.Price)
	percent = amount.InexactFloat64() / previous.Price.InexactFloat64() * 100
	return amount, percent, true
}

// Changes compares the two most recent ledger entries inside the window for
// every qualifying variation, filtered by mode and minimum percent change,
// sorted by descending absolute percent change.
func (a *Analyzer) Changes(params Params) ([]ChangeResult, error) {
	if err := params.Normalize(); err != nil {
		return nil, err
	}
	variations, err := a.loadVariations()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -params.DaysBack)
	var results []ChangeResult
	for i := range variations {
		v := &variations[i]
		windowed := entriesWithin(v.PriceEntries, cutoff)
		if len(windowed) < 2 {
			continue
		}
		latest, previous := windowed[0], windowed[1]
		amount, percent, ok := changeBetween(latest, previous)
		if !ok {
			continue
		}
		classification := ClassDecrease
		if percent > 0 {
			classification = ClassIncrease
		}
		switch params.Mode {
		case ModeDrops:
			if classification != ClassDecrease {
				continue
			}
		case ModeIncreases:
			if classification != ClassIncrease {
				continue
			}
		}
		if math.Abs(percent) < params.MinChangePercent {
			continue
		}

		productName := ""
		if v.Product != nil {
			productName = v.Product.Name
		}
		results = append(results, ChangeResult{
			SKU:            v.SKU,
			Product:        productName,
			Variation:      v.Name,
			CurrentPrice:   latest.Price,
			PreviousPrice:  previous.Price,
			ChangeAmount:   amount,
			ChangePercent:  percent,
			Classification: classification,
			ChangedAt:      latest.RecordedAt,
			EntryCount:     len(v.PriceEntries),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return math.Abs(results[i].ChangePercent) > math.Abs(results[j].ChangePercent)
	})
	if len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

// Volatility computes the min/max spread over each variation's entire
// history (not just the window), for variations with at least 3 entries.
func (a *Analyzer) Volatility(params Params) ([]VolatilityResult, error) {
	if err := params.Normalize(); err != nil {
		return nil, err
	}
	variations, err := a.loadVariations()
	if err != nil {
		return nil, err
	}

	var results []VolatilityResult
	for i := range variations {
		v := &variations[i]
		if len(v.PriceEntries) < 3 {
			continue
		}
		minPrice, maxPrice := v.PriceEntries[0].Price, v.PriceEntries[0].Price
		for _, e := range v.PriceEntries[1:] {
			if e.Price.LessThan(minPrice) {
				minPrice = e.Price
			}
			if e.Price.GreaterThan(maxPrice) {
				maxPrice = e.Price
			}
		}
		if !minPrice.IsPositive() {
			continue
		}
		volatility := maxPrice.Sub(minPrice).InexactFloat64() / minPrice.InexactFloat64() * 100
		if volatility == 0 {
			continue
		}

		productName := ""
		if v.Product != nil {
			productName = v.Product.Name
		}
		results = append(results, VolatilityResult{
			SKU:               v.SKU,
			Product:           productName,
			Variation:         v.Name,
			CurrentPrice:      v.PriceEntries[0].Price,
			MinPrice:          minPrice,
			MaxPrice:          maxPrice,
			VolatilityPercent: volatility,
			EntryCount:        len(v.PriceEntries),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].VolatilityPercent > results[j].VolatilityPercent
	})
	if len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

// Summary returns aggregate ledger counts over the requested window: how
// many variations have no/one/multiple history entries and how many moved
// down or up recently. No per-item detail.
func (a *Analyzer) Summary(daysBack int) (*SummaryStats, error) {
	if daysBack == 0 {
		daysBack = DefaultDaysBack
	}
	if daysBack < MinDaysBack || daysBack > MaxDaysBack {
		return nil, &ValidationError{Field: "days_back", Message: fmt.Sprintf("must be between %d and %d", MinDaysBack, MaxDaysBack)}
	}
	variations, err := a.loadVariations()
	if err != nil {
		return nil, err
	}

	stats := &SummaryStats{DaysBack: daysBack, TotalVariations: len(variations)}
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	for i := range variations {
		v := &variations[i]
		switch len(v.PriceEntries) {
		case 0:
			stats.NoHistory++
			continue
		case 1:
			stats.SingleEntry++
			continue
		default:
			stats.MultipleEntries++
		}

		windowed := entriesWithin(v.PriceEntries, cutoff)
		if len(windowed) < 2 {
			continue
		}
		if _, percent, ok := changeBetween(windowed[0], windowed[1]); ok {
			if percent < 0 {
				stats.RecentDrops++
			} else if percent > 0 {
				stats.RecentIncreases++
			}
		}
	}
	return stats, nil
}
