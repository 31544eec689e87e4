package config

import (
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Price crawler policy
	CrawlTimeoutSeconds int
	CrawlUserAgent      string
	CrawlRatePerSecond  float64
	CategoryCrawlLimit  int
}

func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "root:bleumart@tcp(127.0.0.1:3306)/bleumart?charset=utf8mb4&parseTime=True&loc=Local"),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		CrawlTimeoutSeconds: getEnvInt("CRAWL_TIMEOUT_SECONDS", 10),
		CrawlUserAgent:      getEnv("CRAWL_USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"),
		CrawlRatePerSecond:  getEnvFloat("CRAWL_RATE_PER_SECOND", 1.0),
		CategoryCrawlLimit:  getEnvInt("CATEGORY_CRAWL_LIMIT", 20),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
