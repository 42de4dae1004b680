package site

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Search URL placeholders substituted by SearchURLFor
const (
	QueryPlaceholder    = "{query}"
	MinPricePlaceholder = "{min_price}"
	MaxPricePlaceholder = "{max_price}"
)

// Defaults holds the per-site values used when the user gives none
type Defaults struct {
	Query          string
	MinPrice       int
	MaxPrice       int
	MaxItems       int
	ItemsFile      string
	CapPolicy      string
	UnpricedPolicy string
}

// Profile describes how to poll and pattern-match one marketplace
type Profile struct {
	Name      string
	SearchURL string

	// ItemPattern matches listing URLs (or paths, joined with ItemPrefix)
	ItemPattern string
	ItemPrefix  string
	TrimQuery   bool

	// PricePattern is empty for sites without parsed prices
	PricePattern   string
	PricePrefixLen int
	ExchangeRate   decimal.Decimal

	Defaults Defaults
}

// HasPrices reports whether the profile extracts price markers
func (p Profile) HasPrices() bool {
	return p.PricePattern != ""
}

// SearchURLFor fills the search template for a query and price range.
// minPrice and maxPrice are in the compared currency, the one prices have
// after ExchangeRate; the URL gets them converted back to the page currency.
func (p Profile) SearchURLFor(query string, minPrice, maxPrice int) string {
	r := strings.NewReplacer(
		QueryPlaceholder, url.QueryEscape(query),
		MinPricePlaceholder, p.PagePrice(minPrice).Floor().String(),
		MaxPricePlaceholder, p.PagePrice(maxPrice).Ceil().String(),
	)
	return r.Replace(p.SearchURL)
}

// PagePrice converts a compared-currency amount to the page currency
func (p Profile) PagePrice(v int) decimal.Decimal {
	d := decimal.NewFromInt(int64(v))
	if p.ExchangeRate.IsZero() || p.ExchangeRate.Equal(decimal.NewFromInt(1)) {
		return d
	}
	// drop the error of the inexact rate before rounding to whole units
	return d.Div(p.ExchangeRate).Round(6)
}

var profiles = map[string]Profile{
	"ebay": {
		Name:           "ebay",
		SearchURL:      "https://www.ebay.com/sch/i.html?_sop=10&rt=nc&LH_BIN=1&_udlo={min_price}&_udhi={max_price}&_nkw={query}",
		ItemPattern:    `https://www.ebay.com/itm/[^"]+`,
		TrimQuery:      true,
		PricePattern:   `item__price">[^,]+`,
		PricePrefixLen: len(`item__price">`),
		// listed in RUB, compared in USD; min/max prices are USD
		ExchangeRate: decimal.NewFromInt(1).Div(decimal.NewFromInt(66)),
		Defaults: Defaults{
			Query:          "macbook pro",
			MinPrice:       1,
			MaxPrice:       1000,
			MaxItems:       10,
			ItemsFile:      "Items.txt",
			CapPolicy:      "skip",
			UnpricedPolicy: "log",
		},
	},
	"avito": {
		Name:         "avito",
		SearchURL:    "https://www.avito.ru/sankt-peterburg/noutbuki?pmax={max_price}&pmin={min_price}&s=104&q={query}",
		ItemPattern:  `/sankt-peterburg/noutbuki/[^"]+`,
		ItemPrefix:   "https://www.avito.ru",
		// result links carry per-request tracking parameters
		TrimQuery:    true,
		ExchangeRate: decimal.NewFromInt(1),
		Defaults: Defaults{
			Query:          "MacBook Pro",
			MinPrice:       10000,
			MaxPrice:       60000,
			MaxItems:       5,
			ItemsFile:      "items.txt",
			CapPolicy:      "truncate",
			UnpricedPolicy: "open",
		},
	},
}

// Lookup returns the profile registered under name
func Lookup(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists the registered profile names in sorted order
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
