package main

import (
	"flag"
	"fmt"
	"log"

	"bleumart/internal/config"
	"bleumart/internal/database"
	"bleumart/internal/models"

	"github.com/joho/godotenv"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var out = flag.String("out", "catalog.xlsx", "output workbook path")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeCatalogSheet(f, db); err != nil {
		log.Fatal("catalog sheet:", err)
	}
	if err := writeHistorySheet(f, db); err != nil {
		log.Fatal("price history sheet:", err)
	}

	if err := f.SaveAs(*out); err != nil {
		log.Fatal("save workbook:", err)
	}
	log.Printf("wrote %s", *out)
}

func writeCatalogSheet(f *excelize.File, db *gorm.DB) error {
	const sheet = "Catalog"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"SKU", "Product", "Variation", "Unit", "Current Price", "Stock", "Crawl Status", "URL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	var variations []models.ProductVariation
	if err := db.Preload("Product").Order("id").Find(&variations).Error; err != nil {
		return err
	}

	for row, v := range variations {
		productName, unit := "", ""
		if v.Product != nil {
			productName, unit = v.Product.Name, v.Product.Unit
		}
		price := ""
		if p, ok, err := models.CurrentPrice(db, v.ID); err != nil {
			return err
		} else if ok {
			price = p.StringFixed(2)
		}
		stock, err := models.CurrentStock(db, v.ID)
		if err != nil {
			return err
		}

		values := []interface{}{v.SKU, productName, v.Name, unit, price, stock.StringFixed(2), v.CrawlStatus(), v.URL}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	return nil
}

func writeHistorySheet(f *excelize.File, db *gorm.DB) error {
	const sheet = "PriceHistory"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"SKU", "Price", "Recorded At", "Note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	var entries []models.PriceEntry
	err := db.Preload("Variation").Order("variation_id, recorded_at, id").Find(&entries).Error
	if err != nil {
		return err
	}

	for row, e := range entries {
		sku := fmt.Sprintf("variation-%d", e.VariationID)
		if e.Variation != nil {
			sku = e.Variation.SKU
		}
		values := []interface{}{sku, e.Price.StringFixed(2), e.RecordedAt.Format("2006-01-02 15:04:05"), e.Note}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	return nil
}
