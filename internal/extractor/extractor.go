// Package extractor pulls listing URLs and price markers out of a raw
// search results page using the regular expressions of a site profile.
package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"sjsage522/listingwatcher/helpers"
	"sjsage522/listingwatcher/internal/site"

	"github.com/shopspring/decimal"
)

// PairingMode selects how price markers are matched to listings
type PairingMode string

const (
	// PairAnchored takes the first price marker located between a listing's
	// first occurrence and the next distinct listing's first occurrence.
	PairAnchored PairingMode = "anchored"
	// PairPositional pairs the i-th distinct listing with the i-th price
	// marker on the page. Counts that diverge shift every later pairing.
	PairPositional PairingMode = "positional"
)

// Listing is one distinct listing found on a page
type Listing struct {
	ID    string
	Price decimal.NullDecimal
}

// Result is the outcome of extracting one page
type Result struct {
	// IDs holds distinct listing identifiers in first-occurrence order
	IDs []string
	// Prices holds every raw price marker in page order; unparsable ones are invalid
	Prices []decimal.NullDecimal
	// Listings pairs IDs with prices according to the pairing mode
	Listings []Listing
}

// PriceOf returns the paired price for id, if any
func (r Result) PriceOf(id string) decimal.NullDecimal {
	for _, l := range r.Listings {
		if l.ID == id {
			return l.Price
		}
	}
	return decimal.NullDecimal{}
}

// Extractor is safe for concurrent use; it holds only compiled patterns
type Extractor struct {
	profile site.Profile
	itemRe  *regexp.Regexp
	priceRe *regexp.Regexp
	pairing PairingMode
}

// New compiles the profile patterns
func New(profile site.Profile, pairing PairingMode) (*Extractor, error) {
	itemRe, err := regexp.Compile(profile.ItemPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid item pattern for %s: %w", profile.Name, err)
	}

	var priceRe *regexp.Regexp
	if profile.HasPrices() {
		priceRe, err = regexp.Compile(profile.PricePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid price pattern for %s: %w", profile.Name, err)
		}
	}

	switch pairing {
	case PairAnchored, PairPositional:
	case "":
		pairing = PairAnchored
	default:
		return nil, fmt.Errorf("unknown pairing mode %q", pairing)
	}

	return &Extractor{
		profile: profile,
		itemRe:  itemRe,
		priceRe: priceRe,
		pairing: pairing,
	}, nil
}

// Pairing returns the active pairing mode
func (e *Extractor) Pairing() PairingMode {
	return e.pairing
}

type occurrence struct {
	value string
	start int
}

// Extract never fails: a page without matches yields an empty result
func (e *Extractor) Extract(page string) Result {
	ids := e.extractIDs(page)
	prices := e.extractPrices(page)

	result := Result{
		IDs:      make([]string, len(ids)),
		Listings: make([]Listing, len(ids)),
	}
	for i, id := range ids {
		result.IDs[i] = id.value
		result.Listings[i] = Listing{ID: id.value}
	}
	for _, p := range prices {
		result.Prices = append(result.Prices, p.price)
	}

	if len(prices) == 0 {
		return result
	}

	switch e.pairing {
	case PairPositional:
		for i := range result.Listings {
			if i < len(prices) {
				result.Listings[i].Price = prices[i].price
			}
		}
	default:
		e.pairAnchored(result.Listings, ids, prices, len(page))
	}

	return result
}

func (e *Extractor) extractIDs(page string) []occurrence {
	matches := e.itemRe.FindAllStringIndex(page, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]occurrence, 0, len(matches))

	for _, m := range matches {
		id := e.canonicalize(page[m[0]:m[1]])
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, occurrence{value: id, start: m[0]})
	}
	return ids
}

func (e *Extractor) canonicalize(raw string) string {
	id := e.profile.ItemPrefix + raw
	if e.profile.TrimQuery {
		// index 0 always exists
		id, _ = helpers.GetSplitPart(id, "?", 0)
	}
	return id
}

type priceMatch struct {
	price decimal.NullDecimal
	start int
}

func (e *Extractor) extractPrices(page string) []priceMatch {
	if e.priceRe == nil {
		return nil
	}

	matches := e.priceRe.FindAllStringIndex(page, -1)
	prices := make([]priceMatch, 0, len(matches))
	for _, m := range matches {
		prices = append(prices, priceMatch{
			price: e.parsePrice(page[m[0]:m[1]]),
			start: m[0],
		})
	}
	return prices
}

// parsePrice strips the marker prefix and whitespace and converts with the
// profile exchange rate, rounded to cents. Anything unparsable becomes an
// absent price.
func (e *Extractor) parsePrice(marker string) decimal.NullDecimal {
	if len(marker) <= e.profile.PricePrefixLen {
		return decimal.NullDecimal{}
	}

	raw := strings.ReplaceAll(marker[e.profile.PricePrefixLen:], "&nbsp;", "")
	raw = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}

	rate := e.profile.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	return decimal.NewNullDecimal(value.Mul(rate).Round(2))
}

func (e *Extractor) pairAnchored(listings []Listing, ids []occurrence, prices []priceMatch, pageLen int) {
	for i := range listings {
		from := ids[i].start
		to := pageLen
		if i+1 < len(ids) {
			to = ids[i+1].start
		}

		// first marker starting at or after this listing
		j := sort.Search(len(prices), func(k int) bool { return prices[k].start >= from })
		if j < len(prices) && prices[j].start < to {
			listings[i].Price = prices[j].price
		}
	}
}
