package crawler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryForURL(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		url  string
		want string
	}{
		{"https://startech.com.bd/asus-vivobook", "StarTech"},
		{"https://www.startech.com.bd/asus-vivobook", "StarTech"},
		{"https://daraz.com.bd/products/i123.html", "Daraz"},
		{"https://pages.daraz.com.bd/wow/i123", "Daraz"},
		{"https://example.com/product/1", "Generic"},
		// Lookalike host must not suffix-match.
		{"https://notstartech.com.bd/p", "Generic"},
		{"://bad-url", "Generic"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, registry.ForURL(tt.url).Name())
		})
	}
}

func TestRegistryRegisterCustomDomain(t *testing.T) {
	registry := NewRegistry()
	registry.Register("ryans.com", &StarTechExtractor{})

	assert.Equal(t, "StarTech", registry.ForURL("https://www.ryans.com/laptop").Name())
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		found bool
	}{
		{"৳1,299.50", "1299.5", true},
		{"Tk 45,000", "45000", true},
		{"1250", "1250", true},
		{"0", "", false},
		{"free shipping", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		price, found := parsePrice(tt.in)
		assert.Equal(t, tt.found, found, "input %q", tt.in)
		if tt.found {
			want, err := decimal.NewFromString(tt.want)
			require.NoError(t, err)
			assert.True(t, price.Equal(want), "input %q: got %s", tt.in, price)
		}
	}
}

func TestStarTechExtractor(t *testing.T) {
	e := &StarTechExtractor{}

	t.Run("meta itemprop", func(t *testing.T) {
		body := `<html><head><meta itemprop="price" content="45500"></head></html>`
		price, found, err := e.ExtractPrice("https://startech.com.bd/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(45500)))
	})

	t.Run("discount price wins over struck-through", func(t *testing.T) {
		body := `<div class="product-price"><del>50,000৳</del><ins>45,500৳</ins></div>`
		price, found, err := e.ExtractPrice("https://startech.com.bd/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(45500)))
	})

	t.Run("plain price container", func(t *testing.T) {
		body := `<span class="price">1,299৳</span>`
		price, found, err := e.ExtractPrice("https://startech.com.bd/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(1299)))
	})

	t.Run("no price is a miss, not an error", func(t *testing.T) {
		_, found, err := e.ExtractPrice("https://startech.com.bd/p", "<html><body>out of stock</body></html>")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestDarazExtractor(t *testing.T) {
	e := &DarazExtractor{}

	t.Run("embedded price object", func(t *testing.T) {
		body := `<script>app.run({"price":{"text":"৳ 1,150","value":1150.0}})</script>`
		price, found, err := e.ExtractPrice("https://daraz.com.bd/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(1150)))
	})

	t.Run("json-ld fallback", func(t *testing.T) {
		body := `<script type="application/ld+json">{"@type":"Offer","price":"2450.00"}</script>`
		price, found, err := e.ExtractPrice("https://daraz.com.bd/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromFloat(2450)))
	})

	t.Run("miss on unrelated page", func(t *testing.T) {
		_, found, err := e.ExtractPrice("https://daraz.com.bd/p", "<html>nothing here</html>")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestGenericExtractor(t *testing.T) {
	e := &GenericExtractor{}

	t.Run("json-ld script", func(t *testing.T) {
		body := `<script type="application/ld+json">{"offers":{"price":"999.99"}}</script>`
		price, found, err := e.ExtractPrice("https://example.com/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromFloat(999.99)))
	})

	t.Run("og price meta", func(t *testing.T) {
		body := `<meta property="og:price:amount" content="1,500">`
		price, found, err := e.ExtractPrice("https://example.com/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(1500)))
	})

	t.Run("price container selector", func(t *testing.T) {
		body := `<div class="current-price">Tk 3,250</div>`
		price, found, err := e.ExtractPrice("https://example.com/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(3250)))
	})

	t.Run("currency-marked number in raw text", func(t *testing.T) {
		body := `<p>Special offer, only ৳2,100 while stocks last</p>`
		price, found, err := e.ExtractPrice("https://example.com/p", body)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, price.Equal(decimal.NewFromInt(2100)))
	})

	t.Run("bare numbers without currency marker are ignored", func(t *testing.T) {
		_, found, err := e.ExtractPrice("https://example.com/p", "<p>Model 2024, 16 inch</p>")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("garbage input does not panic", func(t *testing.T) {
		_, found, err := e.ExtractPrice("https://example.com/p", "\x00\x01<<<>>>\xff")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
