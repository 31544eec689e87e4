package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Crawl health policy constants.
const (
	// MaxCrawlErrors is the consecutive-error count at which a variation
	// stops being crawl-eligible until its counter is reset.
	MaxCrawlErrors = 5
	// MaxCrawlErrorLen bounds the stored last_crawl_error text.
	MaxCrawlErrorLen = 500
)

// ProductVariation is a purchasable SKU-level variant with its own price
// ledger and crawl health state.
type ProductVariation struct {
	ID          uint     `json:"id" gorm:"primaryKey"`
	ProductID   uint     `json:"product_id" gorm:"index;not null"`
	Product     *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Name        string   `json:"name" gorm:"size:500;not null"`
	SKU         string   `json:"sku" gorm:"size:500;uniqueIndex;not null"`
	ImageURL    string   `json:"image_url" gorm:"size:600"`
	URL         string   `json:"url" gorm:"size:500"`
	Description string   `json:"description" gorm:"type:text"`

	// Price crawling state
	IsCrawlingEnabled bool       `json:"is_crawling_enabled" gorm:"default:true"`
	LastCrawledAt     *time.Time `json:"last_crawled_at"`
	CrawlErrorCount   uint       `json:"crawl_error_count" gorm:"default:0"`
	LastCrawlError    string     `json:"last_crawl_error" gorm:"type:text"`

	PriceEntries []PriceEntry `json:"price_entries,omitempty" gorm:"foreignKey:VariationID"`
}

// PriceEntry is one immutable price observation in a variation's history.
// Entries are only ever appended; analytics read them as the source of truth.
type PriceEntry struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	VariationID uint              `json:"variation_id" gorm:"index;not null"`
	Variation   *ProductVariation `json:"-" gorm:"foreignKey:VariationID"`
	Price       decimal.Decimal   `json:"price" gorm:"type:decimal(10,2)"`
	RecordedAt  time.Time         `json:"recorded_at" gorm:"index"`
	Note        string            `json:"note" gorm:"size:200"`
}

func (e *PriceEntry) BeforeCreate(tx *gorm.DB) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	return nil
}

// ShouldCrawl reports whether a crawl attempt is allowed: crawling enabled,
// a URL present, and fewer than MaxCrawlErrors consecutive failures.
func (v *ProductVariation) ShouldCrawl() bool {
	if !v.IsCrawlingEnabled || v.URL == "" {
		return false
	}
	return v.CrawlErrorCount < MaxCrawlErrors
}

// RecordCrawlSuccess clears error state and stamps the success time.
// The caller persists the change and appends the price entry.
func (v *ProductVariation) RecordCrawlSuccess(now time.Time) {
	v.LastCrawledAt = &now
	v.CrawlErrorCount = 0
	v.LastCrawlError = ""
}

// RecordCrawlFailure bumps the consecutive error counter and stores the
// message, truncated to MaxCrawlErrorLen runes.
func (v *ProductVariation) RecordCrawlFailure(message string) {
	v.CrawlErrorCount++
	if runes := []rune(message); len(runes) > MaxCrawlErrorLen {
		message = string(runes[:MaxCrawlErrorLen])
	}
	v.LastCrawlError = message
}

// CrawlStatus is a human-readable summary of the crawl health state.
func (v *ProductVariation) CrawlStatus() string {
	switch {
	case v.URL == "":
		return "No URL"
	case !v.IsCrawlingEnabled:
		return "Disabled"
	case v.CrawlErrorCount >= MaxCrawlErrors:
		return "Failed"
	case v.LastCrawledAt != nil:
		return "Last crawled: " + v.LastCrawledAt.Format("2006-01-02 15:04")
	default:
		return "Never crawled"
	}
}

// LatestEntry returns the entry with the greatest timestamp from a loaded
// slice. Timestamp ties go to the most recently inserted entry (highest id).
func LatestEntry(entries []PriceEntry) (PriceEntry, bool) {
	if len(entries) == 0 {
		return PriceEntry{}, false
	}
	latest := entries[0]
	for _, e := range entries[1:] {
		if e.RecordedAt.After(latest.RecordedAt) ||
			(e.RecordedAt.Equal(latest.RecordedAt) && e.ID > latest.ID) {
			latest = e
		}
	}
	return latest, true
}

// CurrentPrice reads the most recent ledger entry for a variation.
// The bool is false when the variation has no price history yet.
func CurrentPrice(db *gorm.DB, variationID uint) (decimal.Decimal, bool, error) {
	var entry PriceEntry
	err := db.Where("variation_id = ?", variationID).
		Order("recorded_at DESC, id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return entry.Price, true, nil
}

// AddPrice appends an entry to the variation's ledger.
func AddPrice(db *gorm.DB, variationID uint, price decimal.Decimal, recordedAt time.Time, note string) (*PriceEntry, error) {
	entry := &PriceEntry{
		VariationID: variationID,
		Price:       price,
		RecordedAt:  recordedAt,
		Note:        note,
	}
	if err := db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// VariationBySKU looks up a variation by its SKU.
func VariationBySKU(db *gorm.DB, sku string) (*ProductVariation, error) {
	var v ProductVariation
	err := db.Where("sku = ?", sku).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CrawlableVariationsByCategory returns crawl-eligible variations whose
// product belongs to the category, capped at limit to bound batch latency.
func CrawlableVariationsByCategory(db *gorm.DB, categoryID uint, limit int) ([]ProductVariation, error) {
	var variations []ProductVariation
	err := db.
		Joins("JOIN product_categories pc ON pc.product_id = product_variations.product_id").
		Where("pc.category_id = ?", categoryID).
		Where("is_crawling_enabled = ?", true).
		Where("url <> ''").
		Where("crawl_error_count < ?", MaxCrawlErrors).
		Order("product_variations.id").
		Limit(limit).
		Find(&variations).Error
	if err != nil {
		return nil, err
	}
	return variations, nil
}
