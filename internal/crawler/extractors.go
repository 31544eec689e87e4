package crawler

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	numberPattern   = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)
	jsonLDPrice     = regexp.MustCompile(`"price"\s*:\s*"?([0-9][0-9,]*(?:\.[0-9]+)?)"?`)
	darazPriceValue = regexp.MustCompile(`"price"\s*:\s*\{[^{}]*?"value"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
	currencyPrice   = regexp.MustCompile(`(?:৳|Tk\.?\s?|BDT\s?|\$)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

// parsePrice pulls the first numeric substring out of a price string like
// "৳1,299.50" or "1,250৳". Returns false when nothing numeric is present
// or the value is not positive.
func parsePrice(text string) (decimal.Decimal, bool) {
	match := numberPattern.FindString(text)
	if match == "" {
		return decimal.Zero, false
	}
	match = strings.ReplaceAll(match, ",", "")
	price, err := decimal.NewFromString(match)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}

// StarTechExtractor reads startech.com.bd product pages.
type StarTechExtractor struct{}

func (e *StarTechExtractor) Name() string { return "StarTech" }

func (e *StarTechExtractor) ExtractPrice(pageURL, body string) (decimal.Decimal, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return decimal.Zero, false, nil
	}

	if content, ok := doc.Find(`meta[itemprop="price"]`).Attr("content"); ok {
		if price, found := parsePrice(content); found {
			return price, true, nil
		}
	}

	for _, selector := range []string{".product-price ins", ".product-price", ".price"} {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if price, found := parsePrice(text); found {
			return price, true, nil
		}
	}
	return decimal.Zero, false, nil
}

// DarazExtractor reads daraz.com.bd product pages, which embed the offer
// as JSON inside a script tag.
type DarazExtractor struct{}

func (e *DarazExtractor) Name() string { return "Daraz" }

func (e *DarazExtractor) ExtractPrice(pageURL, body string) (decimal.Decimal, bool, error) {
	if m := darazPriceValue.FindStringSubmatch(body); len(m) == 2 {
		if price, found := parsePrice(m[1]); found {
			return price, true, nil
		}
	}
	// Older pages carry plain JSON-LD offers instead.
	if m := jsonLDPrice.FindStringSubmatch(body); len(m) == 2 {
		if price, found := parsePrice(m[1]); found {
			return price, true, nil
		}
	}
	return decimal.Zero, false, nil
}

// GenericExtractor is the fallback for unknown sites. It tries structured
// data first and degrades to scanning for currency-marked numbers.
type GenericExtractor struct{}

func (e *GenericExtractor) Name() string { return "Generic" }

var genericPriceSelectors = []string{
	".product-price",
	".current-price",
	".special-price",
	".price-new",
	"#price",
	".price",
}

func (e *GenericExtractor) ExtractPrice(pageURL, body string) (decimal.Decimal, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		// Unparseable markup still gets the raw-text heuristics below.
		doc = nil
	}

	if doc != nil {
		// JSON-LD offers
		var price decimal.Decimal
		found := false
		doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := jsonLDPrice.FindStringSubmatch(s.Text()); len(m) == 2 {
				if p, ok := parsePrice(m[1]); ok {
					price, found = p, true
					return false
				}
			}
			return true
		})
		if found {
			return price, true, nil
		}

		// Price-bearing meta tags
		for _, selector := range []string{
			`meta[property="og:price:amount"]`,
			`meta[property="product:price:amount"]`,
			`meta[itemprop="price"]`,
		} {
			if content, ok := doc.Find(selector).Attr("content"); ok {
				if p, ok := parsePrice(content); ok {
					return p, true, nil
				}
			}
		}

		// Common price container markup
		for _, selector := range genericPriceSelectors {
			text := strings.TrimSpace(doc.Find(selector).First().Text())
			if p, ok := parsePrice(text); ok {
				return p, true, nil
			}
		}
	}

	// Last resort: currency-marked number anywhere in the body
	if m := currencyPrice.FindStringSubmatch(body); len(m) == 2 {
		if p, ok := parsePrice(m[1]); ok {
			return p, true, nil
		}
	}

	return decimal.Zero, false, nil
}
