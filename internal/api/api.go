package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bleumart/internal/analysis"
	"bleumart/internal/crawler"
	"bleumart/internal/metrics"
	"bleumart/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type APIHandler struct {
	db       *gorm.DB
	crawler  *crawler.Crawler
	analyzer *analysis.Analyzer
	hub      *CrawlHub
	logger   *zap.Logger
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, crawlerSvc *crawler.Crawler, logger *zap.Logger) *APIHandler {
	handler := &APIHandler{
		db:       db,
		crawler:  crawlerSvc,
		analyzer: analysis.New(db),
		hub:      NewCrawlHub(logger),
		logger:   logger,
	}
	crawlerSvc.SetProgressFunc(handler.hub.Broadcast)

	categories := r.Group("/categories")
	{
		categories.GET("", handler.ListCategories)
		categories.GET("/:slug", handler.GetCategory)
		categories.GET("/:slug/products", handler.CategoryProducts)
	}
	r.GET("/navigation", handler.Navigation)

	products := r.Group("/products")
	{
		products.GET("", handler.ListProducts)
		products.GET("/:slug", handler.GetProduct)
	}

	variations := r.Group("/variations")
	{
		variations.GET("", handler.ListVariations)
		variations.GET("/:sku", handler.GetVariation)
		variations.GET("/:sku/price-history", handler.PriceHistory)
		variations.POST("/:sku/enable-crawling", handler.EnableCrawling)
		variations.POST("/:sku/disable-crawling", handler.DisableCrawling)
		variations.POST("/:sku/reset-crawl-errors", handler.ResetCrawlErrors)
	}

	suppliers := r.Group("/suppliers")
	{
		suppliers.GET("", handler.ListSuppliers)
		suppliers.POST("", handler.CreateSupplier)
	}
	stock := r.Group("/stock-entries")
	{
		stock.GET("", handler.ListStockEntries)
		stock.POST("", handler.CreateStockEntry)
	}
	sales := r.Group("/retail-sales")
	{
		sales.GET("", handler.ListRetailSales)
		sales.POST("", handler.CreateRetailSale)
	}

	orders := r.Group("/orders")
	{
		orders.GET("", handler.ListOrders)
		orders.POST("/create", handler.CreateOrder)
	}

	r.POST("/update-price", handler.UpdatePrice)
	r.GET("/site-config", handler.GetSiteConfig)
	r.PUT("/site-config", handler.UpdateSiteConfig)

	crawl := r.Group("/crawl")
	{
		crawl.POST("/variations", handler.CrawlVariations)
		crawl.POST("/categories/:id", handler.CrawlCategory)
	}

	r.GET("/price-analysis", handler.PriceAnalysis)
	r.GET("/price-drops", handler.PriceDrops)
	r.GET("/price-increases", handler.PriceIncreases)
	r.GET("/volatile-prices", handler.VolatilePrices)

	return handler
}

// Hub exposes the websocket progress hub for mounting outside the API group.
func (h *APIHandler) Hub() *CrawlHub { return h.hub }

func (h *APIHandler) respondError(c *gin.Context, err error) {
	var validationErr *analysis.ValidationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ---------- Categories ----------

func (h *APIHandler) ListCategories(c *gin.Context) {
	var categories []models.Category
	if err := h.db.Order("name").Find(&categories).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *APIHandler) GetCategory(c *gin.Context) {
	var category models.Category
	err := h.db.Preload("Attributes.Choices").
		Where("slug = ?", c.Param("slug")).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.respondError(c, models.ErrNotFound)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	attrs, err := category.AllAttributes(h.db)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"category":       category,
		"all_attributes": attrs,
	})
}

func (h *APIHandler) CategoryProducts(c *gin.Context) {
	var category models.Category
	err := h.db.Where("slug = ?", c.Param("slug")).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.respondError(c, models.ErrNotFound)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	var products []models.Product
	err = h.db.
		Joins("JOIN product_categories pc ON pc.product_id = products.id").
		Where("pc.category_id = ?", category.ID).
		Preload("Variations").
		Order("products.name").
		Find(&products).Error
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]gin.H, 0, len(products))
	for i := range products {
		views = append(views, h.productView(&products[i]))
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "products": views})
}

type navNode struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	ProductCount int64     `json:"product_count"`
	Children     []navNode `json:"children,omitempty"`
}

// Navigation renders the category tree two levels deep with product counts.
func (h *APIHandler) Navigation(c *gin.Context) {
	var categories []models.Category
	if err := h.db.Order("name").Find(&categories).Error; err != nil {
		h.respondError(c, err)
		return
	}

	childrenOf := make(map[uint][]models.Category)
	var roots []models.Category
	for _, cat := range categories {
		if cat.ParentID == nil {
			roots = append(roots, cat)
		} else {
			childrenOf[*cat.ParentID] = append(childrenOf[*cat.ParentID], cat)
		}
	}

	count := func(categoryID uint) int64 {
		var n int64
		h.db.Table("product_categories").Where("category_id = ?", categoryID).Count(&n)
		return n
	}

	tree := make([]navNode, 0, len(roots))
	for _, root := range roots {
		node := navNode{ID: root.ID, Name: root.Name, Slug: root.Slug, ProductCount: count(root.ID)}
		for _, child := range childrenOf[root.ID] {
			node.Children = append(node.Children, navNode{
				ID: child.ID, Name: child.Name, Slug: child.Slug, ProductCount: count(child.ID),
			})
		}
		tree = append(tree, node)
	}
	c.JSON(http.StatusOK, gin.H{"navigation": tree})
}

// ---------- Products ----------

func (h *APIHandler) productView(p *models.Product) gin.H {
	variations := make([]gin.H, 0, len(p.Variations))
	for i := range p.Variations {
		variations = append(variations, h.variationView(&p.Variations[i]))
	}
	return gin.H{
		"id":          p.ID,
		"name":        p.Name,
		"slug":        p.Slug,
		"unit":        p.Unit,
		"description": p.Description,
		"variations":  variations,
	}
}

func (h *APIHandler) variationView(v *models.ProductVariation) gin.H {
	view := gin.H{
		"id":                  v.ID,
		"product_id":          v.ProductID,
		"name":                v.Name,
		"sku":                 v.SKU,
		"url":                 v.URL,
		"image_url":           v.ImageURL,
		"is_crawling_enabled": v.IsCrawlingEnabled,
		"crawl_error_count":   v.CrawlErrorCount,
		"crawl_status":        v.CrawlStatus(),
	}
	if price, ok, err := models.CurrentPrice(h.db, v.ID); err == nil && ok {
		view["price"] = price
	}
	if stock, err := models.CurrentStock(h.db, v.ID); err == nil {
		view["stock"] = stock
	}
	return view
}

func (h *APIHandler) ListProducts(c *gin.Context) {
	var products []models.Product
	if err := h.db.Preload("Variations").Preload("Categories").Order("name").Find(&products).Error; err != nil {
		h.respondError(c, err)
		return
	}
	views := make([]gin.H, 0, len(products))
	for i := range products {
		views = append(views, h.productView(&products[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *APIHandler) GetProduct(c *gin.Context) {
	var product models.Product
	err := h.db.
		Preload("Variations").
		Preload("Categories").
		Preload("Attributes.CategoryAttribute").
		Preload("Attributes.SelectedChoices").
		Where("slug = ?", c.Param("slug")).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.respondError(c, models.ErrNotFound)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	view := h.productView(&product)
	view["categories"] = product.Categories
	view["attributes"] = product.Attributes
	c.JSON(http.StatusOK, view)
}

// ---------- Variations ----------

func (h *APIHandler) ListVariations(c *gin.Context) {
	query := h.db.Preload("Product").Order("id")
	if c.Query("crawlable") == "true" {
		query = query.
			Where("is_crawling_enabled = ?", true).
			Where("url <> ''").
			Where("crawl_error_count < ?", models.MaxCrawlErrors)
	}
	var variations []models.ProductVariation
	if err := query.Find(&variations).Error; err != nil {
		h.respondError(c, err)
		return
	}
	views := make([]gin.H, 0, len(variations))
	for i := range variations {
		views = append(views, h.variationView(&variations[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *APIHandler) getVariation(c *gin.Context) (*models.ProductVariation, bool) {
	v, err := models.VariationBySKU(h.db, c.Param("sku"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return v, true
}

func (h *APIHandler) GetVariation(c *gin.Context) {
	v, ok := h.getVariation(c)
	if !ok {
		return
	}
	view := h.variationView(v)
	view["last_crawled_at"] = v.LastCrawledAt
	view["last_crawl_error"] = v.LastCrawlError
	c.JSON(http.StatusOK, view)
}

func (h *APIHandler) PriceHistory(c *gin.Context) {
	v, ok := h.getVariation(c)
	if !ok {
		return
	}
	var entries []models.PriceEntry
	err := h.db.Where("variation_id = ?", v.ID).
		Order("recorded_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": v.SKU, "entries": entries})
}

func (h *APIHandler) setCrawlingEnabled(c *gin.Context, enabled bool) {
	v, ok := h.getVariation(c)
	if !ok {
		return
	}
	if err := h.db.Model(v).Update("is_crawling_enabled", enabled).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": v.SKU, "is_crawling_enabled": enabled})
}

func (h *APIHandler) EnableCrawling(c *gin.Context)  { h.setCrawlingEnabled(c, true) }
func (h *APIHandler) DisableCrawling(c *gin.Context) { h.setCrawlingEnabled(c, false) }

func (h *APIHandler) ResetCrawlErrors(c *gin.Context) {
	v, ok := h.getVariation(c)
	if !ok {
		return
	}
	err := h.db.Model(v).
		Updates(map[string]interface{}{"crawl_error_count": 0, "last_crawl_error": ""}).Error
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": v.SKU, "crawl_error_count": 0})
}

// ---------- Suppliers / Stock / Sales ----------

func (h *APIHandler) ListSuppliers(c *gin.Context) {
	var suppliers []models.Supplier
	if err := h.db.Order("name").Find(&suppliers).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func (h *APIHandler) CreateSupplier(c *gin.Context) {
	var supplier models.Supplier
	if err := c.ShouldBindJSON(&supplier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if supplier.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if err := h.db.Create(&supplier).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

type stockEntryRequest struct {
	SKU         string          `json:"sku" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SupplierID  *uint           `json:"supplier_id"`
	ReceiptInfo string          `json:"receipt_info"`
}

func (h *APIHandler) ListStockEntries(c *gin.Context) {
	var entries []models.StockEntry
	if err := h.db.Preload("Supplier").Order("purchase_date DESC").Find(&entries).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *APIHandler) CreateStockEntry(c *gin.Context) {
	var req stockEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Quantity.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
		return
	}
	v, err := models.VariationBySKU(h.db, req.SKU)
	if err != nil {
		h.respondError(c, err)
		return
	}
	entry := models.StockEntry{
		VariationID:  v.ID,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		SupplierID:   req.SupplierID,
		PurchaseDate: time.Now(),
		ReceiptInfo:  req.ReceiptInfo,
	}
	if err := h.db.Create(&entry).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type retailSaleRequest struct {
	SKU         string          `json:"sku" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	RetailPrice decimal.Decimal `json:"retail_price"`
}

func (h *APIHandler) ListRetailSales(c *gin.Context) {
	var sales []models.RetailSale
	if err := h.db.Order("sale_date DESC").Find(&sales).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *APIHandler) CreateRetailSale(c *gin.Context) {
	var req retailSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Quantity.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
		return
	}
	v, err := models.VariationBySKU(h.db, req.SKU)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sale := models.RetailSale{
		VariationID: v.ID,
		Quantity:    req.Quantity,
		RetailPrice: req.RetailPrice,
		SaleDate:    time.Now(),
	}
	if err := h.db.Create(&sale).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

// ---------- Orders ----------

type createOrderRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Address  string `json:"address" binding:"required"`
	District string `json:"district"`
	Thana    string `json:"thana"`
	SKU      string `json:"sku" binding:"required"`
	Quantity uint   `json:"quantity"`
	Notes    string `json:"notes"`
}

func (h *APIHandler) ListOrders(c *gin.Context) {
	var orders []models.Order
	if err := h.db.Preload("Customer").Preload("Variation").Order("order_date DESC").Find(&orders).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// CreateOrder captures an order, deduplicating customers by phone number.
func (h *APIHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	v, err := models.VariationBySKU(h.db, req.SKU)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var customer models.Customer
	err = h.db.Where(models.Customer{Phone: req.Phone}).
		Attrs(models.Customer{
			Name:       req.Name,
			RawAddress: req.Address,
			District:   req.District,
			Thana:      req.Thana,
		}).
		FirstOrCreate(&customer).Error
	if err != nil {
		h.respondError(c, err)
		return
	}

	order := models.Order{
		CustomerID:  customer.ID,
		VariationID: v.ID,
		Quantity:    req.Quantity,
		Status:      models.OrderPending,
		Notes:       req.Notes,
	}
	if err := h.db.Create(&order).Error; err != nil {
		h.respondError(c, err)
		return
	}

	response := gin.H{
		"order_id": order.ID,
		"customer": customer,
		"sku":      v.SKU,
		"quantity": order.Quantity,
		"status":   order.Status,
	}
	if price, ok, err := models.CurrentPrice(h.db, v.ID); err == nil && ok {
		response["total_amount"] = price.Mul(decimal.NewFromInt(int64(order.Quantity)))
	}
	c.JSON(http.StatusCreated, response)
}

// ---------- Price updates ----------

type updatePriceRequest struct {
	SKU   string          `json:"sku" binding:"required"`
	Price decimal.Decimal `json:"price"`
	Notes string          `json:"notes"`
}

// UpdatePrice appends a manual ledger entry, bypassing the crawler.
func (h *APIHandler) UpdatePrice(c *gin.Context) {
	var req updatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be non-negative"})
		return
	}

	v, err := models.VariationBySKU(h.db, req.SKU)
	if err != nil {
		h.respondError(c, err)
		return
	}

	entry, err := models.AddPrice(h.db, v.ID, req.Price, time.Now(), req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	metrics.PriceEntriesAppended.WithLabelValues("manual").Inc()

	c.JSON(http.StatusOK, gin.H{
		"sku":        v.SKU,
		"new_price":  entry.Price,
		"notes":      entry.Note,
		"updated_at": entry.RecordedAt,
	})
}

// ---------- Site config ----------

func (h *APIHandler) GetSiteConfig(c *gin.Context) {
	cfg, err := models.GetSiteConfig(h.db)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *APIHandler) UpdateSiteConfig(c *gin.Context) {
	cfg, err := models.GetSiteConfig(h.db)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := c.ShouldBindJSON(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.Save(cfg).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ---------- Crawling ----------

type crawlRequest struct {
	VariationIDs []uint   `json:"variation_ids"`
	SKUs         []string `json:"skus"`
}

func (h *APIHandler) CrawlVariations(c *gin.Context) {
	var req crawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.VariationIDs) == 0 && len(req.SKUs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "variation_ids or skus is required"})
		return
	}

	query := h.db.Order("id")
	if len(req.VariationIDs) > 0 {
		query = query.Where("id IN ?", req.VariationIDs)
	} else {
		query = query.Where("sku IN ?", req.SKUs)
	}
	var variations []models.ProductVariation
	if err := query.Find(&variations).Error; err != nil {
		h.respondError(c, err)
		return
	}

	summary := h.crawler.CrawlVariations(c.Request.Context(), variations)
	c.JSON(http.StatusOK, summary)
}

func (h *APIHandler) CrawlCategory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}
	var category models.Category
	if err := h.db.First(&category, uint(id)).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		h.respondError(c, models.ErrNotFound)
		return
	} else if err != nil {
		h.respondError(c, err)
		return
	}

	summary, err := h.crawler.CrawlCategory(c.Request.Context(), category.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ---------- Price analysis ----------

func (h *APIHandler) analysisParams(c *gin.Context) (analysis.Params, error) {
	var params analysis.Params
	if raw := c.Query("days_back"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, &analysis.ValidationError{Field: "days_back", Message: "must be an integer"}
		}
		params.DaysBack = n
	}
	if raw := c.Query("min_change_percent"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, &analysis.ValidationError{Field: "min_change_percent", Message: "must be a number"}
		}
		params.MinChangePercent = f
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, &analysis.ValidationError{Field: "limit", Message: "must be an integer"}
		}
		params.Limit = n
	}
	params.Mode = c.DefaultQuery("type", analysis.ModeChanges)
	return params, nil
}

func (h *APIHandler) runAnalysis(c *gin.Context, mode string) {
	params, err := h.analysisParams(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if mode != "" {
		params.Mode = mode
	}

	var results interface{}
	if params.Mode == analysis.ModeVolatility {
		results, err = h.analyzer.Volatility(params)
	} else {
		results, err = h.analyzer.Changes(params)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	summary, err := h.analyzer.Summary(params.DaysBack)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "results": results})
}

func (h *APIHandler) PriceAnalysis(c *gin.Context)  { h.runAnalysis(c, "") }
func (h *APIHandler) PriceDrops(c *gin.Context)     { h.runAnalysis(c, analysis.ModeDrops) }
func (h *APIHandler) PriceIncreases(c *gin.Context) { h.runAnalysis(c, analysis.ModeIncreases) }
func (h *APIHandler) VolatilePrices(c *gin.Context) { h.runAnalysis(c, analysis.ModeVolatility) }
