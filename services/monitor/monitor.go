package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"time"

	"sjsage522/listingwatcher/internal/extractor"
	"sjsage522/listingwatcher/logger"
	perrors "sjsage522/listingwatcher/pkg/errors"
	"sjsage522/listingwatcher/services/cache"
	"sjsage522/listingwatcher/services/notifier"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/panics"
)

// CapPolicy decides what happens when a cycle finds more new listings than MaxItems
type CapPolicy string

const (
	// CapSkip notifies about none of them
	CapSkip CapPolicy = "skip"
	// CapTruncate notifies about the first MaxItems in page order
	CapTruncate CapPolicy = "truncate"
)

// Fetcher downloads the search page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Extractor turns a page into listings
type Extractor interface {
	Extract(page string) extractor.Result
}

// SeenStore tracks reported listings
type SeenStore interface {
	DiffAndAdd(candidates []string) []string
	Persist(ids []string) error
	Len() int
	Path() string
}

// Notifier surfaces one new listing
type Notifier interface {
	Notify(ctx context.Context, cycleID, id string, price decimal.NullDecimal) notifier.Decision
}

// Settings is the immutable configuration of a Monitor
type Settings struct {
	Site      string
	SearchURL string
	MaxItems  int
	CapPolicy CapPolicy
	Delay     time.Duration
}

// Dependencies holds the collaborators of a Monitor
type Dependencies struct {
	Fetcher   Fetcher
	Extractor Extractor
	Store     SeenStore
	Notifier  Notifier
	Cache     cache.CacheService // optional page fingerprint cache
	// Delay overrides the constant Settings.Delay policy; backoff.Stop ends Run
	Delay  backoff.BackOff
	Logger *logger.Logger
}

// Cycle records one iteration of the loop
type Cycle struct {
	ID        string
	Iteration int
	StartedAt time.Time
	PageSize  int
	IDs       []string
	Prices    []decimal.NullDecimal
	New       []string
	Notified  []string
	Capped    bool
	Unchanged bool
}

// Monitor runs the poll, extract, dedupe, notify and persist loop
type Monitor struct {
	settings  Settings
	fetcher   Fetcher
	extractor Extractor
	store     SeenStore
	notifier  Notifier
	cache     cache.CacheService
	delay     backoff.BackOff
	log       *logger.Logger
	iteration int
}

// New creates a monitor
func New(settings Settings, deps Dependencies) *Monitor {
	if settings.CapPolicy == "" {
		settings.CapPolicy = CapSkip
	}

	delay := deps.Delay
	if delay == nil {
		delay = backoff.NewConstantBackOff(settings.Delay)
	}

	log := deps.Logger
	if log == nil {
		log = logger.ForMonitor()
	}

	return &Monitor{
		settings:  settings,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		store:     deps.Store,
		notifier:  deps.Notifier,
		cache:     deps.Cache,
		delay:     delay,
		log:       log.WithField("site", settings.Site),
	}
}

// Iteration returns the number of cycles started so far
func (m *Monitor) Iteration() int {
	return m.iteration
}

// Run waits the delay, runs a cycle, and repeats until ctx is cancelled or
// the delay policy returns backoff.Stop. Cycle errors are logged, never returned.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().
		Str("search_url", m.settings.SearchURL).
		Int("known_listings", m.store.Len()).
		Msg("Monitor started")

	for {
		wait := m.delay.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		start := time.Now()
		cycle, err := m.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			event := m.log.Error()
			var merr *perrors.MonitorError
			if errors.As(err, &merr) && merr.IsTransient() {
				event = m.log.Warn()
			}
			event.
				Err(err).
				Str("cycle_id", cycle.ID).
				Int("iteration", cycle.Iteration).
				Msg("Cycle failed")
			continue
		}

		if logger.IsDebugEnabled() {
			m.log.Debug().
				Str("cycle_id", cycle.ID).
				Dur("elapsed", time.Since(start)).
				Msg("Cycle finished")
		}
	}
}

// RunCycle performs one fetch, extract, filter, notify and persist pass.
// Faults in extraction or notification are recovered and returned as errors.
func (m *Monitor) RunCycle(ctx context.Context) (*Cycle, error) {
	m.iteration++
	cycle := &Cycle{
		ID:        uuid.NewString(),
		Iteration: m.iteration,
		StartedAt: time.Now(),
	}
	log := m.log.WithFields(logger.Fields{"cycle_id": cycle.ID, "iteration": cycle.Iteration})

	page, err := m.fetcher.Fetch(ctx, m.settings.SearchURL)
	if err != nil {
		return cycle, err
	}
	cycle.PageSize = len(page)

	fingerprint := ""
	if m.cache != nil {
		fingerprint = cache.Fingerprint([]byte(page))
		if m.pageUnchanged(fingerprint) {
			cycle.Unchanged = true
			log.Debug().Msg("Search page unchanged, skipping extraction")
			return cycle, nil
		}
	}

	var result extractor.Result
	var pc panics.Catcher
	pc.Try(func() {
		result = m.extractor.Extract(page)
		cycle.IDs = result.IDs
		cycle.Prices = result.Prices
		cycle.New = m.store.DiffAndAdd(result.IDs)
	})
	if r := pc.Recovered(); r != nil {
		return cycle, perrors.NewExtraction(m.settings.Site, "extraction panicked", r.AsError())
	}

	log.Info().
		Int("found", len(cycle.IDs)).
		Int("new", len(cycle.New)).
		Msgf("New items loaded: %d", len(cycle.New))

	var notifyErr error
	if len(cycle.New) > 0 {
		notifyErr = m.notifyAll(ctx, log, cycle, result)
	}

	// persisted even when notifying failed, so file and memory agree
	if err := m.store.Persist(cycle.New); err != nil {
		return cycle, errors.Join(notifyErr, err)
	}
	if notifyErr != nil {
		return cycle, notifyErr
	}

	if fingerprint != "" {
		m.rememberPage(fingerprint)
	}
	return cycle, nil
}

func (m *Monitor) notifyAll(ctx context.Context, log *logger.Logger, cycle *Cycle, result extractor.Result) error {
	targets := cycle.New
	if len(targets) > m.settings.MaxItems {
		cycle.Capped = true
		switch m.settings.CapPolicy {
		case CapTruncate:
			targets = targets[:m.settings.MaxItems]
			log.Warn().
				Int("new", len(cycle.New)).
				Msgf("Too many new items. First %d will be shown.", m.settings.MaxItems)
		default:
			log.Warn().
				Int("new", len(cycle.New)).
				Int("max_items", m.settings.MaxItems).
				Msg("Too many new items. Skipping.")
			return nil
		}
	}

	prices := make(map[string]decimal.NullDecimal, len(result.Listings))
	for _, l := range result.Listings {
		prices[l.ID] = l.Price
	}

	var pc panics.Catcher
	pc.Try(func() {
		for _, id := range targets {
			if ctx.Err() != nil {
				return
			}
			m.notifier.Notify(ctx, cycle.ID, id, prices[id])
			cycle.Notified = append(cycle.Notified, id)
		}
	})
	if r := pc.Recovered(); r != nil {
		return perrors.NewNotify(m.settings.Site, "notification panicked", r.AsError())
	}
	return nil
}

func (m *Monitor) pageKey() string {
	return cache.PageKey(m.settings.Site, m.settings.SearchURL, m.storeScope())
}

// storeScope identifies the seen set by file and size; a fingerprint only
// proves nothing is new when it was stored against the same set
func (m *Monitor) storeScope() string {
	path := m.store.Path()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path + "#" + strconv.Itoa(m.store.Len())
}

func (m *Monitor) pageUnchanged(fingerprint string) bool {
	prev, err := m.cache.Get(m.pageKey())
	if err != nil {
		return false
	}
	return string(prev) == fingerprint
}

func (m *Monitor) rememberPage(fingerprint string) {
	ttl := 10 * m.settings.Delay
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := m.cache.Set(m.pageKey(), []byte(fingerprint), ttl); err != nil {
		m.log.Debug().Err(err).Msg("Failed to cache page fingerprint")
	}
}
