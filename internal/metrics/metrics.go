package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	CrawlAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_attempts_total",
			Help: "Total number of variation crawl attempts.",
		},
	)
	CrawlSuccesses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_successes_total",
			Help: "Total number of crawl attempts that produced a price entry.",
		},
	)
	CrawlFetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_fetch_errors_total",
			Help: "Total number of crawl attempts that failed fetching the page.",
		},
	)
	CrawlExtractionMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_extraction_misses_total",
			Help: "Total number of fetched pages where no price could be extracted.",
		},
	)
	PriceEntriesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_entries_appended_total",
			Help: "Total number of price ledger appends.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(CrawlAttempts)
	prometheus.MustRegister(CrawlSuccesses)
	prometheus.MustRegister(CrawlFetchErrors)
	prometheus.MustRegister(CrawlExtractionMisses)
	prometheus.MustRegister(PriceEntriesAppended)
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
