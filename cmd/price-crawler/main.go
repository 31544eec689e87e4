package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"bleumart/internal/config"
	"bleumart/internal/crawler"
	"bleumart/internal/database"
	"bleumart/internal/logger"
	"bleumart/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	categoryID = flag.Uint("category", 0, "crawl only variations in this category id")
	skus       = flag.String("skus", "", "comma-separated SKUs to crawl (overrides -category)")
	interval   = flag.Duration("interval", 0, "rerun the crawl on this interval (0 = run once)")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zl.Sync()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}

	crawlerSvc := crawler.New(db, cfg, zl)
	ctx := context.Background()

	run := func() {
		var summary crawler.Summary
		var err error
		switch {
		case *skus != "":
			var variations []models.ProductVariation
			skuList := strings.Split(*skus, ",")
			for i := range skuList {
				skuList[i] = strings.TrimSpace(skuList[i])
			}
			if err = db.Where("sku IN ?", skuList).Order("id").Find(&variations).Error; err == nil {
				summary = crawlerSvc.CrawlVariations(ctx, variations)
			}
		case *categoryID != 0:
			summary, err = crawlerSvc.CrawlCategory(ctx, *categoryID)
		default:
			summary, err = crawlerSvc.CrawlAllEligible(ctx)
		}
		if err != nil {
			zl.Error("crawl run failed", zap.Error(err))
			return
		}
		zl.Info("crawl run complete",
			zap.Int("attempted", summary.Attempted),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed))
	}

	run()
	if *interval <= 0 {
		return
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		run()
	}
}
