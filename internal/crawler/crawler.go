package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bleumart/internal/config"
	"bleumart/internal/metrics"
	"bleumart/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// ErrNoPrice marks an extraction miss: the page was fetched but no price
// could be found in it. It feeds the error counter exactly like a fetch
// failure.
var ErrNoPrice = errors.New("could not extract price from URL")

// Summary aggregates one batch crawl.
type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProgressEvent is emitted after each attempted variation, e.g. to the
// websocket progress stream.
type ProgressEvent struct {
	SKU    string `json:"sku"`
	Status string `json:"status"` // "success" or "failed"
	Price  string `json:"price,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ProgressFunc receives crawl progress events.
type ProgressFunc func(ProgressEvent)

// Crawler fetches variation pages one at a time and feeds the price ledger
// and crawl health state. Batches are strictly sequential; the rate limiter
// spaces requests out.
type Crawler struct {
	db            *gorm.DB
	client        *resty.Client
	registry      *Registry
	limiter       *rate.Limiter
	logger        *zap.Logger
	categoryLimit int
	progress      ProgressFunc
}

func New(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *Crawler {
	client := resty.New().
		SetTimeout(time.Duration(cfg.CrawlTimeoutSeconds) * time.Second).
		SetHeader("User-Agent", cfg.CrawlUserAgent)

	return &Crawler{
		db:            db,
		client:        client,
		registry:      NewRegistry(),
		limiter:       rate.NewLimiter(rate.Limit(cfg.CrawlRatePerSecond), 1),
		logger:        logger,
		categoryLimit: cfg.CategoryCrawlLimit,
	}
}

// Registry exposes the extractor registry so callers can register
// additional site strategies.
func (c *Crawler) Registry() *Registry { return c.registry }

// SetProgressFunc installs a sink for per-variation progress events.
func (c *Crawler) SetProgressFunc(fn ProgressFunc) { c.progress = fn }

// CrawlVariations processes the batch sequentially. One variation's failure
// never prevents processing of the remainder: every attempt outcome is
// recorded on the variation itself and reflected in the summary counts.
func (c *Crawler) CrawlVariations(ctx context.Context, variations []models.ProductVariation) Summary {
	var summary Summary
	for i := range variations {
		v := &variations[i]
		if !v.ShouldCrawl() {
			continue
		}
		summary.Attempted++
		metrics.CrawlAttempts.Inc()

		if c.crawlOne(ctx, v) {
			summary.Succeeded++
			metrics.CrawlSuccesses.Inc()
		} else {
			summary.Failed++
		}
	}
	c.logger.Info("crawl batch finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary
}

// CrawlCategory crawls the crawl-eligible variations of a category, capped
// to bound batch latency.
func (c *Crawler) CrawlCategory(ctx context.Context, categoryID uint) (Summary, error) {
	variations, err := models.CrawlableVariationsByCategory(c.db, categoryID, c.categoryLimit)
	if err != nil {
		return Summary{}, err
	}
	return c.CrawlVariations(ctx, variations), nil
}

// CrawlAllEligible crawls every crawl-eligible variation in the catalog.
func (c *Crawler) CrawlAllEligible(ctx context.Context) (Summary, error) {
	var variations []models.ProductVariation
	err := c.db.
		Where("is_crawling_enabled = ?", true).
		Where("url <> ''").
		Where("crawl_error_count < ?", models.MaxCrawlErrors).
		Order("id").
		Find(&variations).Error
	if err != nil {
		return Summary{}, err
	}
	return c.CrawlVariations(ctx, variations), nil
}

// crawlOne is the per-variation error boundary: fetch errors, extraction
// misses, extractor errors and panics all end up as a recorded failure on
// the variation, never as an aborted batch.
func (c *Crawler) crawlOne(ctx context.Context, v *models.ProductVariation) (succeeded bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("crawl panicked", zap.String("sku", v.SKU), zap.Any("panic", r))
			c.fail(v, fmt.Sprintf("Crawling failed: %v", r))
			succeeded = false
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		c.fail(v, fmt.Sprintf("Crawling failed: %v", err))
		return false
	}

	resp, err := c.client.R().SetContext(ctx).Get(v.URL)
	if err != nil {
		metrics.CrawlFetchErrors.Inc()
		c.fail(v, fmt.Sprintf("Crawling failed: %v", err))
		return false
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		metrics.CrawlFetchErrors.Inc()
		c.fail(v, fmt.Sprintf("Crawling failed: unexpected status %d", resp.StatusCode()))
		return false
	}

	extractor := c.registry.ForURL(v.URL)
	price, found, err := extractor.ExtractPrice(v.URL, string(resp.Body()))
	if err != nil {
		extErr := &ExtractionError{Extractor: extractor.Name(), Err: err}
		c.fail(v, fmt.Sprintf("Crawling failed: %v", extErr))
		return false
	}
	if !found {
		metrics.CrawlExtractionMisses.Inc()
		c.fail(v, ErrNoPrice.Error())
		return false
	}

	now := time.Now()
	note := fmt.Sprintf("Crawled using %s extractor", extractor.Name())
	if _, err := models.AddPrice(c.db, v.ID, price, now, note); err != nil {
		c.fail(v, fmt.Sprintf("Crawling failed: %v", err))
		return false
	}
	metrics.PriceEntriesAppended.WithLabelValues("crawler").Inc()

	v.RecordCrawlSuccess(now)
	if err := c.saveCrawlState(v); err != nil {
		c.logger.Error("failed to persist crawl success", zap.String("sku", v.SKU), zap.Error(err))
	}

	c.logger.Info("crawled price",
		zap.String("sku", v.SKU),
		zap.String("price", price.String()),
		zap.String("extractor", extractor.Name()))
	c.emit(ProgressEvent{SKU: v.SKU, Status: "success", Price: price.String()})
	return true
}

func (c *Crawler) fail(v *models.ProductVariation, message string) {
	v.RecordCrawlFailure(message)
	if err := c.saveCrawlState(v); err != nil {
		c.logger.Error("failed to persist crawl failure", zap.String("sku", v.SKU), zap.Error(err))
	}
	c.logger.Warn("crawl failed",
		zap.String("sku", v.SKU),
		zap.Uint("error_count", v.CrawlErrorCount),
		zap.String("error", v.LastCrawlError))
	c.emit(ProgressEvent{SKU: v.SKU, Status: "failed", Error: v.LastCrawlError})
}

func (c *Crawler) saveCrawlState(v *models.ProductVariation) error {
	return c.db.Model(v).
		Select("LastCrawledAt", "CrawlErrorCount", "LastCrawlError").
		Updates(v).Error
}

func (c *Crawler) emit(event ProgressEvent) {
	if c.progress != nil {
		c.progress(event)
	}
}
