package notifier

import (
	"context"
	"fmt"
	"time"

	"sjsage522/listingwatcher/logger"
	perrors "sjsage522/listingwatcher/pkg/errors"
	"sjsage522/listingwatcher/services/publisher"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/panics"
)

// UnpricedPolicy decides what happens to a listing without a known price
type UnpricedPolicy string

const (
	// UnpricedLog surfaces the listing as a log line only
	UnpricedLog UnpricedPolicy = "log"
	// UnpricedOpen opens the listing as if it passed the price filter
	UnpricedOpen UnpricedPolicy = "open"
)

// Decision is what Notify did with a listing
type Decision string

const (
	// DecisionOpened means the listing passed the filter and was opened
	DecisionOpened Decision = "opened"
	// DecisionOverThreshold means the price is above the threshold; log line only
	DecisionOverThreshold Decision = "over_threshold"
	// DecisionUnpriced means no price was known and the policy is to log only
	DecisionUnpriced Decision = "unpriced"
)

// URLOpener opens a URL without blocking
type URLOpener interface {
	Open(url string) error
}

// Beeper emits an audible alert
type Beeper interface {
	Beep() error
}

// Options configures a Notifier
type Options struct {
	Site           string
	Query          string
	Threshold      decimal.Decimal
	Unpriced       UnpricedPolicy
	Opener         URLOpener
	Beeper         Beeper
	Publisher      publisher.Publisher // optional
	PublishTimeout time.Duration
	Logger         *logger.Logger
}

// Notifier applies the price filter to new listings and fires the desktop
// side effects. Side effects are best effort: their errors and panics are
// logged and never returned.
type Notifier struct {
	opts Options
	log  *logger.Logger
}

// New creates a notifier
func New(opts Options) *Notifier {
	if opts.Unpriced == "" {
		opts.Unpriced = UnpricedLog
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.ForNotifier()
	}
	return &Notifier{opts: opts, log: log.WithField("site", opts.Site)}
}

// Notify handles one newly discovered listing
func (n *Notifier) Notify(ctx context.Context, cycleID, id string, price decimal.NullDecimal) Decision {
	decision := n.decide(price)

	event := n.log.Info().Str("url", id).Str("decision", string(decision))
	if price.Valid {
		event = event.Str("price", price.Decimal.String())
	}
	event.Msg("New listing")

	if decision == DecisionOpened {
		n.sideEffect(id, "beep", func() error { return n.opts.Beeper.Beep() })
		n.sideEffect(id, "open", func() error { return n.opts.Opener.Open(id) })
	}

	n.publish(ctx, cycleID, id, price, decision)

	return decision
}

func (n *Notifier) decide(price decimal.NullDecimal) Decision {
	if !price.Valid {
		if n.opts.Unpriced == UnpricedOpen {
			return DecisionOpened
		}
		return DecisionUnpriced
	}
	if price.Decimal.LessThanOrEqual(n.opts.Threshold) {
		return DecisionOpened
	}
	return DecisionOverThreshold
}

func (n *Notifier) sideEffect(id, name string, fn func() error) {
	var err error
	recovered := panics.Try(func() { err = fn() })
	if recovered != nil {
		err = recovered.AsError()
	}
	if err != nil {
		n.log.Warn().
			Err(perrors.NewNotify(n.opts.Site, name+" failed", err)).
			Str("url", id).
			Msg("Notification side effect failed")
	}
}

func (n *Notifier) publish(ctx context.Context, cycleID, id string, price decimal.NullDecimal, decision Decision) {
	if n.opts.Publisher == nil {
		return
	}

	ev := publisher.ListingEvent{
		ID:         id,
		Site:       n.opts.Site,
		Query:      n.opts.Query,
		Opened:     decision == DecisionOpened,
		CycleID:    cycleID,
		DetectedAt: time.Now().UTC(),
	}
	if price.Valid {
		ev.Price = price.Decimal.String()
	}

	n.sideEffect(id, "publish", func() error {
		pubCtx, cancel := context.WithTimeout(ctx, n.opts.PublishTimeout)
		defer cancel()
		if err := n.opts.Publisher.Publish(pubCtx, ev); err != nil {
			return fmt.Errorf("stream publish: %w", err)
		}
		return nil
	})
}
