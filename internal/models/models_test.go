package models_test

import (
	"strings"
	"testing"
	"time"

	"bleumart/internal/database"
	"bleumart/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func createVariation(t *testing.T, db *gorm.DB, sku, url string) *models.ProductVariation {
	t.Helper()
	product := models.Product{Name: "Product " + sku}
	require.NoError(t, db.Create(&product).Error)
	v := models.ProductVariation{
		ProductID:         product.ID,
		Name:              "Variation " + sku,
		SKU:               sku,
		URL:               url,
		IsCrawlingEnabled: true,
	}
	require.NoError(t, db.Create(&v).Error)
	return &v
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "gaming-laptop-156", models.Slugify("Gaming Laptop 15.6\""))
	assert.Equal(t, "a-b-c", models.Slugify("  A   b---C  "))
	assert.Equal(t, "", models.Slugify("!!!"))
}

func TestCategorySlugDeduplication(t *testing.T) {
	db := setupTestDB(t)

	first := models.Category{Name: "Laptops"}
	second := models.Category{Name: "Laptops"}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	assert.Equal(t, "laptops", first.Slug)
	assert.Equal(t, "laptops-1", second.Slug)
}

func TestCategoryAttributeInheritance(t *testing.T) {
	db := setupTestDB(t)

	parent := models.Category{Name: "Electronics"}
	require.NoError(t, db.Create(&parent).Error)
	child := models.Category{Name: "Laptops", ParentID: &parent.ID}
	require.NoError(t, db.Create(&child).Error)

	require.NoError(t, db.Create(&models.CategoryAttribute{CategoryID: parent.ID, Name: "Brand"}).Error)
	require.NoError(t, db.Create(&models.CategoryAttribute{CategoryID: parent.ID, Name: "Warranty"}).Error)
	// Child shadows the parent's Warranty attribute.
	require.NoError(t, db.Create(&models.CategoryAttribute{CategoryID: child.ID, Name: "Warranty"}).Error)
	require.NoError(t, db.Create(&models.CategoryAttribute{CategoryID: child.ID, Name: "Processor"}).Error)

	attrs, err := child.AllAttributes(db)
	require.NoError(t, err)
	require.Len(t, attrs, 3)

	names := make(map[string]uint, len(attrs))
	for _, a := range attrs {
		names[a.Name] = a.CategoryID
	}
	assert.Equal(t, child.ID, names["Warranty"])
	assert.Equal(t, child.ID, names["Processor"])
	assert.Equal(t, parent.ID, names["Brand"])
}

func TestShouldCrawl(t *testing.T) {
	tests := []struct {
		name string
		v    models.ProductVariation
		want bool
	}{
		{"eligible", models.ProductVariation{IsCrawlingEnabled: true, URL: "https://example.com/p"}, true},
		{"disabled", models.ProductVariation{IsCrawlingEnabled: false, URL: "https://example.com/p"}, false},
		{"no url", models.ProductVariation{IsCrawlingEnabled: true}, false},
		{"at error threshold", models.ProductVariation{IsCrawlingEnabled: true, URL: "https://example.com/p", CrawlErrorCount: models.MaxCrawlErrors}, false},
		{"just below threshold", models.ProductVariation{IsCrawlingEnabled: true, URL: "https://example.com/p", CrawlErrorCount: models.MaxCrawlErrors - 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.ShouldCrawl())
		})
	}
}

func TestRecordCrawlFailureDisablesAfterThreshold(t *testing.T) {
	v := models.ProductVariation{IsCrawlingEnabled: true, URL: "https://example.com/p"}
	for i := 0; i < models.MaxCrawlErrors-1; i++ {
		v.RecordCrawlFailure("Crawling failed: timeout")
		assert.True(t, v.ShouldCrawl())
	}
	v.RecordCrawlFailure("Crawling failed: timeout")
	assert.False(t, v.ShouldCrawl())
	assert.Equal(t, uint(models.MaxCrawlErrors), v.CrawlErrorCount)
}

func TestRecordCrawlFailureTruncatesMessage(t *testing.T) {
	v := models.ProductVariation{}
	long := strings.Repeat("x", models.MaxCrawlErrorLen+50)
	v.RecordCrawlFailure(long)
	assert.Len(t, []rune(v.LastCrawlError), models.MaxCrawlErrorLen)
}

func TestRecordCrawlSuccessResetsErrorState(t *testing.T) {
	v := models.ProductVariation{CrawlErrorCount: 3, LastCrawlError: "Crawling failed: timeout"}
	now := time.Now()
	v.RecordCrawlSuccess(now)

	assert.Zero(t, v.CrawlErrorCount)
	assert.Empty(t, v.LastCrawlError)
	require.NotNil(t, v.LastCrawledAt)
	assert.Equal(t, now, *v.LastCrawledAt)
}

func TestCrawlStatus(t *testing.T) {
	assert.Equal(t, "No URL", (&models.ProductVariation{IsCrawlingEnabled: true}).CrawlStatus())
	assert.Equal(t, "Disabled", (&models.ProductVariation{URL: "u"}).CrawlStatus())
	assert.Equal(t, "Failed", (&models.ProductVariation{IsCrawlingEnabled: true, URL: "u", CrawlErrorCount: 5}).CrawlStatus())
	assert.Equal(t, "Never crawled", (&models.ProductVariation{IsCrawlingEnabled: true, URL: "u"}).CrawlStatus())
}

func TestCurrentPriceUsesLatestEntry(t *testing.T) {
	db := setupTestDB(t)
	v := createVariation(t, db, "SKU-1", "")

	base := time.Now().Add(-48 * time.Hour)
	_, err := models.AddPrice(db, v.ID, decimal.NewFromInt(100), base, "")
	require.NoError(t, err)
	_, err = models.AddPrice(db, v.ID, decimal.NewFromInt(120), base.Add(24*time.Hour), "")
	require.NoError(t, err)

	price, ok, err := models.CurrentPrice(db, v.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(120)))
}

func TestCurrentPriceTimestampTieGoesToLastInsert(t *testing.T) {
	db := setupTestDB(t)
	v := createVariation(t, db, "SKU-TIE", "")

	at := time.Now()
	_, err := models.AddPrice(db, v.ID, decimal.NewFromInt(100), at, "")
	require.NoError(t, err)
	_, err = models.AddPrice(db, v.ID, decimal.NewFromInt(95), at, "")
	require.NoError(t, err)

	price, ok, err := models.CurrentPrice(db, v.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(95)))
}

func TestCurrentPriceEmptyLedger(t *testing.T) {
	db := setupTestDB(t)
	v := createVariation(t, db, "SKU-EMPTY", "")

	_, ok, err := models.CurrentPrice(db, v.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestEntryTieBreak(t *testing.T) {
	at := time.Now()
	entries := []models.PriceEntry{
		{ID: 1, Price: decimal.NewFromInt(100), RecordedAt: at},
		{ID: 3, Price: decimal.NewFromInt(90), RecordedAt: at},
		{ID: 2, Price: decimal.NewFromInt(110), RecordedAt: at},
	}
	latest, ok := models.LatestEntry(entries)
	require.True(t, ok)
	assert.Equal(t, uint(3), latest.ID)

	_, ok = models.LatestEntry(nil)
	assert.False(t, ok)
}

func TestVariationBySKU(t *testing.T) {
	db := setupTestDB(t)
	createVariation(t, db, "SKU-FOUND", "")

	v, err := models.VariationBySKU(db, "SKU-FOUND")
	require.NoError(t, err)
	assert.Equal(t, "SKU-FOUND", v.SKU)

	_, err = models.VariationBySKU(db, "SKU-MISSING")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCrawlableVariationsByCategory(t *testing.T) {
	db := setupTestDB(t)

	category := models.Category{Name: "Phones"}
	require.NoError(t, db.Create(&category).Error)

	eligible := createVariation(t, db, "SKU-OK", "https://example.com/ok")
	disabled := createVariation(t, db, "SKU-OFF", "https://example.com/off")
	require.NoError(t, db.Model(disabled).Update("is_crawling_enabled", false).Error)
	noURL := createVariation(t, db, "SKU-NOURL", "")
	exhausted := createVariation(t, db, "SKU-ERR", "https://example.com/err")
	require.NoError(t, db.Model(exhausted).Update("crawl_error_count", models.MaxCrawlErrors).Error)

	for _, v := range []*models.ProductVariation{eligible, disabled, noURL, exhausted} {
		require.NoError(t, db.Exec(
			"INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)",
			v.ProductID, category.ID).Error)
	}

	variations, err := models.CrawlableVariationsByCategory(db, category.ID, 20)
	require.NoError(t, err)
	require.Len(t, variations, 1)
	assert.Equal(t, "SKU-OK", variations[0].SKU)
}

func TestCrawlableVariationsByCategoryLimit(t *testing.T) {
	db := setupTestDB(t)

	category := models.Category{Name: "Bulk"}
	require.NoError(t, db.Create(&category).Error)
	for i := 0; i < 5; i++ {
		v := createVariation(t, db, "SKU-BULK-"+string(rune('A'+i)), "https://example.com/p")
		require.NoError(t, db.Exec(
			"INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)",
			v.ProductID, category.ID).Error)
	}

	variations, err := models.CrawlableVariationsByCategory(db, category.ID, 3)
	require.NoError(t, err)
	assert.Len(t, variations, 3)
}

func TestCurrentStock(t *testing.T) {
	db := setupTestDB(t)
	v := createVariation(t, db, "SKU-STOCK", "")

	require.NoError(t, db.Create(&models.StockEntry{
		VariationID:  v.ID,
		Quantity:     decimal.NewFromInt(10),
		UnitPrice:    decimal.NewFromInt(50),
		PurchaseDate: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&models.RetailSale{
		VariationID: v.ID,
		Quantity:    decimal.NewFromInt(3),
		RetailPrice: decimal.NewFromInt(70),
		SaleDate:    time.Now(),
	}).Error)

	stock, err := models.CurrentStock(db, v.ID)
	require.NoError(t, err)
	assert.True(t, stock.Equal(decimal.NewFromInt(7)))
}

func TestGetSiteConfigSingleton(t *testing.T) {
	db := setupTestDB(t)

	first, err := models.GetSiteConfig(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.ID)

	first.SupportPhone = "01700000000"
	require.NoError(t, db.Save(first).Error)

	second, err := models.GetSiteConfig(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), second.ID)
	assert.Equal(t, "01700000000", second.SupportPhone)

	var count int64
	require.NoError(t, db.Model(&models.SiteConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
