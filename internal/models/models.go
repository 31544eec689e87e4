package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookup helpers when no row matches.
var ErrNotFound = errors.New("not found")

var (
	nonSlugChars = regexp.MustCompile(`[^\w\s-]`)
	slugDashes   = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases, strips special characters and collapses whitespace
// into dashes.
func Slugify(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = nonSlugChars.ReplaceAllString(text, "")
	text = slugDashes.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}

// uniqueSlug appends -1, -2, ... until no row of the given model uses the slug.
func uniqueSlug(tx *gorm.DB, model interface{}, base string) string {
	slug := base
	counter := 1
	for {
		var count int64
		tx.Model(model).Where("slug = ?", slug).Count(&count)
		if count == 0 {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
		counter++
	}
}

// Category is a node in the catalog tree. Attributes are inherited from
// parent categories.
type Category struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	Name        string              `json:"name" gorm:"size:500;not null"`
	Slug        string              `json:"slug" gorm:"size:500;uniqueIndex"`
	ParentID    *uint               `json:"parent_id" gorm:"index"`
	Parent      *Category           `json:"-" gorm:"foreignKey:ParentID"`
	ImageURL    string              `json:"image_url" gorm:"size:600"`
	Description string              `json:"description" gorm:"type:text"`
	Attributes  []CategoryAttribute `json:"attributes,omitempty" gorm:"foreignKey:CategoryID"`
	Products    []*Product          `json:"-" gorm:"many2many:product_categories;"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.Slug == "" {
		c.Slug = uniqueSlug(tx, &Category{}, Slugify(c.Name))
	}
	return nil
}

// AllAttributes returns the category's own attributes plus any inherited
// from ancestors. A child attribute shadows a parent attribute of the same
// name.
func (c *Category) AllAttributes(db *gorm.DB) ([]CategoryAttribute, error) {
	var attrs []CategoryAttribute
	if err := db.Where("category_id = ?", c.ID).
		Order("display_order, name").Find(&attrs).Error; err != nil {
		return nil, err
	}

	if c.ParentID != nil {
		var parent Category
		if err := db.First(&parent, *c.ParentID).Error; err != nil {
			return nil, err
		}
		parentAttrs, err := parent.AllAttributes(db)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(attrs))
		for _, a := range attrs {
			seen[a.Name] = true
		}
		for _, pa := range parentAttrs {
			if !seen[pa.Name] {
				attrs = append(attrs, pa)
			}
		}
	}
	return attrs, nil
}

// CategoryAttribute describes an attribute products in a category may carry,
// e.g. "Processor" or "Storage".
type CategoryAttribute struct {
	ID           uint                      `json:"id" gorm:"primaryKey"`
	CategoryID   uint                      `json:"category_id" gorm:"index;not null"`
	Category     *Category                 `json:"-" gorm:"foreignKey:CategoryID"`
	Name         string                    `json:"name" gorm:"size:100;not null"`
	Slug         string                    `json:"slug" gorm:"size:150;uniqueIndex"`
	IsRequired   bool                      `json:"is_required" gorm:"default:false"`
	DisplayOrder uint                      `json:"display_order" gorm:"default:0"`
	Choices      []CategoryAttributeChoice `json:"choices,omitempty" gorm:"foreignKey:AttributeID"`
}

func (a *CategoryAttribute) BeforeCreate(tx *gorm.DB) error {
	if a.Slug == "" {
		var category Category
		if err := tx.First(&category, a.CategoryID).Error; err != nil {
			return err
		}
		base := fmt.Sprintf("%s-%s", Slugify(category.Slug), Slugify(a.Name))
		a.Slug = uniqueSlug(tx, &CategoryAttribute{}, base)
	}
	return nil
}

// CategoryAttributeChoice is a selectable value for an attribute,
// e.g. "64GB" for "Storage".
type CategoryAttributeChoice struct {
	ID           uint               `json:"id" gorm:"primaryKey"`
	AttributeID  uint               `json:"attribute_id" gorm:"index;not null"`
	Attribute    *CategoryAttribute `json:"-" gorm:"foreignKey:AttributeID"`
	Value        string             `json:"value" gorm:"size:200;not null"`
	Slug         string             `json:"slug" gorm:"size:200;uniqueIndex"`
	DisplayOrder uint               `json:"display_order" gorm:"default:0"`
}

func (c *CategoryAttributeChoice) BeforeCreate(tx *gorm.DB) error {
	if c.Slug == "" {
		var attr CategoryAttribute
		if err := tx.First(&attr, c.AttributeID).Error; err != nil {
			return err
		}
		base := fmt.Sprintf("%s-%s", attr.Slug, Slugify(c.Value))
		c.Slug = uniqueSlug(tx, &CategoryAttributeChoice{}, base)
	}
	return nil
}

// Valid product units.
const (
	UnitPiece      = "pc"
	UnitKilogram   = "kg"
	UnitLitre      = "ltr"
	UnitGram       = "gm"
	UnitYard       = "yd"
	UnitMetre      = "m"
	UnitCentimetre = "cm"
	UnitMillimetre = "mm"
)

// Product groups one or more purchasable variations.
type Product struct {
	ID          uint               `json:"id" gorm:"primaryKey"`
	Name        string             `json:"name" gorm:"size:500;not null"`
	Slug        string             `json:"slug" gorm:"size:500;uniqueIndex"`
	Unit        string             `json:"unit" gorm:"size:20;default:'pc'"`
	Description string             `json:"description" gorm:"type:text"`
	Categories  []*Category        `json:"categories,omitempty" gorm:"many2many:product_categories;"`
	Variations  []ProductVariation `json:"variations,omitempty" gorm:"foreignKey:ProductID"`
	Attributes  []ProductAttribute `json:"attributes,omitempty" gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.Slug == "" {
		p.Slug = uniqueSlug(tx, &Product{}, Slugify(p.Name))
	}
	return nil
}

// ProductAttribute assigns selected attribute choices to a product.
type ProductAttribute struct {
	ID                  uint                       `json:"id" gorm:"primaryKey"`
	ProductID           uint                       `json:"product_id" gorm:"uniqueIndex:idx_product_attr;not null"`
	CategoryAttributeID uint                       `json:"category_attribute_id" gorm:"uniqueIndex:idx_product_attr;not null"`
	CategoryAttribute   *CategoryAttribute         `json:"category_attribute,omitempty" gorm:"foreignKey:CategoryAttributeID"`
	SelectedChoices     []*CategoryAttributeChoice `json:"selected_choices,omitempty" gorm:"many2many:product_attribute_choices;"`
}

// Supplier of stock entries.
type Supplier struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"size:500;not null"`
	Slug        string `json:"slug" gorm:"size:500;uniqueIndex"`
	ContactInfo string `json:"contact_info" gorm:"type:text"`
}

func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	if s.Slug == "" {
		s.Slug = uniqueSlug(tx, &Supplier{}, Slugify(s.Name))
	}
	return nil
}

// StockEntry records a purchase of stock for a variation.
type StockEntry struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	VariationID  uint             `json:"variation_id" gorm:"index;not null"`
	Variation    ProductVariation `json:"-" gorm:"foreignKey:VariationID"`
	Quantity     decimal.Decimal  `json:"quantity" gorm:"type:decimal(10,2)"`
	UnitPrice    decimal.Decimal  `json:"unit_price" gorm:"type:decimal(10,2)"`
	SupplierID   *uint            `json:"supplier_id"`
	Supplier     *Supplier        `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
	PurchaseDate time.Time        `json:"purchase_date"`
	ReceiptInfo  string           `json:"receipt_info" gorm:"type:text"`
}

// RetailSale records a sale of a variation at a point-in-time price.
type RetailSale struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	VariationID uint             `json:"variation_id" gorm:"index;not null"`
	Variation   ProductVariation `json:"-" gorm:"foreignKey:VariationID"`
	Quantity    decimal.Decimal  `json:"quantity" gorm:"type:decimal(10,2)"`
	RetailPrice decimal.Decimal  `json:"retail_price" gorm:"type:decimal(10,2)"`
	SaleDate    time.Time        `json:"sale_date"`
}

// Customer captured from order intake. Phone is the natural key.
type Customer struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Name             string    `json:"name" gorm:"size:100;not null"`
	RawAddress       string    `json:"raw_address" gorm:"type:text"`
	FormattedAddress string    `json:"formatted_address" gorm:"type:text"`
	District         string    `json:"district" gorm:"size:50"`
	Thana            string    `json:"thana" gorm:"size:50"`
	Phone            string    `json:"phone" gorm:"size:20;uniqueIndex"`
	FraudReportCount uint      `json:"fraud_report_count" gorm:"default:0"`
	SuccessCount     uint      `json:"success_count" gorm:"default:0"`
	CancellationCnt  uint      `json:"cancellation_count" gorm:"column:cancellation_count;default:0"`
	CreatedAt        time.Time `json:"created_at"`
}

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Order is a single-variation purchase order.
type Order struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	CustomerID  uint              `json:"customer_id" gorm:"index;not null"`
	Customer    *Customer         `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	VariationID uint              `json:"variation_id" gorm:"index;not null"`
	Variation   *ProductVariation `json:"variation,omitempty" gorm:"foreignKey:VariationID"`
	Quantity    uint              `json:"quantity" gorm:"default:1"`
	Status      string            `json:"status" gorm:"size:20;default:'pending'"`
	Notes       string            `json:"notes" gorm:"type:text"`
	OrderDate   time.Time         `json:"order_date" gorm:"autoCreateTime"`
}

// SiteConfig is a singleton row (pk forced to 1) of storefront settings.
type SiteConfig struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	CODEnabled          bool       `json:"cod_enabled" gorm:"default:true"`
	FreeDeliveryText    string     `json:"free_delivery_text" gorm:"size:160"`
	ReturnPolicyText    string     `json:"return_policy_text" gorm:"size:160"`
	AuthenticText       string     `json:"authentic_text" gorm:"size:160"`
	GuaranteeText       string     `json:"guarantee_text" gorm:"size:160"`
	SupportPhone        string     `json:"support_phone" gorm:"size:40"`
	SupportWhatsapp     string     `json:"support_whatsapp" gorm:"size:40"`
	ShippingNotice      string     `json:"shipping_notice" gorm:"size:160"`
	CTAText             string     `json:"cta_text" gorm:"size:60"`
	EnableCountdown     bool       `json:"enable_countdown" gorm:"default:false"`
	CountdownEndDate    *time.Time `json:"countdown_end_date"`
	CountdownText       string     `json:"countdown_text" gorm:"size:100"`
	EnableStockCounter  bool       `json:"enable_stock_counter" gorm:"default:false"`
	StockCounterText    string     `json:"stock_counter_text" gorm:"size:80"`
	EnableSocialProof   bool       `json:"enable_social_proof" gorm:"default:true"`
	SocialProofInterval uint       `json:"social_proof_interval" gorm:"default:8000"`
}

func (s *SiteConfig) BeforeSave(tx *gorm.DB) error {
	s.ID = 1
	return nil
}

// GetSiteConfig returns the singleton config row, creating it on first use.
func GetSiteConfig(db *gorm.DB) (*SiteConfig, error) {
	cfg := &SiteConfig{ID: 1}
	if err := db.FirstOrCreate(cfg, SiteConfig{ID: 1}).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

// CurrentStock is entries minus sales for a variation.
func CurrentStock(db *gorm.DB, variationID uint) (decimal.Decimal, error) {
	var entered, sold decimal.NullDecimal
	if err := db.Model(&StockEntry{}).
		Where("variation_id = ?", variationID).
		Select("SUM(quantity)").Scan(&entered).Error; err != nil {
		return decimal.Zero, err
	}
	if err := db.Model(&RetailSale{}).
		Where("variation_id = ?", variationID).
		Select("SUM(quantity)").Scan(&sold).Error; err != nil {
		return decimal.Zero, err
	}
	return entered.Decimal.Sub(sold.Decimal), nil
}
