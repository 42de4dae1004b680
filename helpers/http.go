package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"strings"
	"time"

	"sjsage522/listingwatcher/logger"
	perrors "sjsage522/listingwatcher/pkg/errors"

	"golang.org/x/net/html/charset"
)

// HTTP header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	}
)

// DefaultFetchTimeout bounds a single search page request
const DefaultFetchTimeout = 30 * time.Second

// Fetcher downloads search pages as UTF-8 text
type Fetcher struct {
	site   string
	client *http.Client
	rnd    *mathrand.Rand
	log    *logger.Logger
}

// NewFetcher creates a fetcher whose requests give up after timeout
func NewFetcher(site string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		site:   site,
		client: &http.Client{Timeout: timeout},
		rnd:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		log:    logger.ForFetcher(site),
	}
}

// Fetch sends a single GET request and returns the body converted to UTF-8.
// Transport failures, timeouts and non-2xx answers are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", perrors.NewNetwork(f.site, "failed to create request", err)
	}

	req.Header.Set("User-Agent", userAgents[f.rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ru;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", perrors.NewNetwork(f.site, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return "", perrors.NewStatus(f.site, resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perrors.NewNetwork(f.site, "failed to read response body", err)
	}

	if logger.IsDebugEnabled() {
		f.log.Debug().
			Int("status", resp.StatusCode).
			Int("bytes", len(bodyBytes)).
			Dur("elapsed", time.Since(start)).
			Msg("Fetched search page")
	}

	return toUTF8(bodyBytes, resp.Header.Get("Content-Type"))
}

// toUTF8 determines the encoding from the Content-Type header and body
// content and converts when needed
func toUTF8(body []byte, contentType string) (string, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if strings.EqualFold(name, "utf-8") {
		return string(body), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(body))); err != nil {
		return "", fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}
	return buf.String(), nil
}
