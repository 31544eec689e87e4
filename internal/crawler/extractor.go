package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Extractor parses a fetched page body into a price. Implementations are
// stateless; found=false means the page held no recognizable price (an
// extraction miss, not an error). A non-nil error means the extractor itself
// failed unexpectedly.
type Extractor interface {
	Name() string
	ExtractPrice(pageURL, body string) (price decimal.Decimal, found bool, err error)
}

// ExtractionError wraps an unexpected extractor failure so callers can tell
// it apart from a plain miss.
type ExtractionError struct {
	Extractor string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extractor %s failed: %v", e.Extractor, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Registry resolves an extractor for a URL by matching its host against
// registered domain suffixes. Unmatched hosts get the generic extractor.
// New sites are supported by registering a new strategy, never by editing
// an existing one.
type Registry struct {
	byDomain map[string]Extractor
	fallback Extractor
}

// NewRegistry builds a registry preloaded with the known site extractors
// and the generic fallback.
func NewRegistry() *Registry {
	r := &Registry{
		byDomain: make(map[string]Extractor),
		fallback: &GenericExtractor{},
	}
	r.Register("startech.com.bd", &StarTechExtractor{})
	r.Register("daraz.com.bd", &DarazExtractor{})
	return r
}

// Register maps a domain (matched as an exact host or a parent-domain
// suffix) to an extractor.
func (r *Registry) Register(domain string, e Extractor) {
	r.byDomain[strings.ToLower(domain)] = e
}

// ForURL resolves the extractor for a target URL.
func (r *Registry) ForURL(rawURL string) Extractor {
	u, err := url.Parse(rawURL)
	if err != nil {
		return r.fallback
	}
	host := strings.ToLower(u.Hostname())
	for domain, e := range r.byDomain {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return e
		}
	}
	return r.fallback
}
