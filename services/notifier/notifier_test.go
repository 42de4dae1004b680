package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"sjsage522/listingwatcher/logger"
	"sjsage522/listingwatcher/services/publisher"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockOpener records opened URLs
type MockOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
	panic  bool
}

var _ URLOpener = (*MockOpener)(nil)

func (m *MockOpener) Open(url string) error {
	if m.panic {
		panic("launcher exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, url)
	return m.err
}

// MockBeeper counts beeps
type MockBeeper struct {
	beeps int
	err   error
}

var _ Beeper = (*MockBeeper)(nil)

func (m *MockBeeper) Beep() error {
	m.beeps++
	return m.err
}

// MockPublisher keeps published events in memory
type MockPublisher struct {
	events []publisher.ListingEvent
	err    error
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(_ context.Context, event publisher.ListingEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

func price(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func newTestNotifier(unpriced UnpricedPolicy, op *MockOpener, bp *MockBeeper, pub publisher.Publisher) *Notifier {
	return New(Options{
		Site:      "ebay",
		Query:     "macbook",
		Threshold: decimal.NewFromInt(500),
		Unpriced:  unpriced,
		Opener:    op,
		Beeper:    bp,
		Publisher: pub,
		Logger:    logger.Nop(),
	})
}

func TestNotifyPriceFilter(t *testing.T) {
	op, bp := &MockOpener{}, &MockBeeper{}
	n := newTestNotifier(UnpricedLog, op, bp, nil)
	ctx := context.Background()

	assert.Equal(t, DecisionOpened, n.Notify(ctx, "c1", "A", price(400)))
	assert.Equal(t, DecisionOpened, n.Notify(ctx, "c1", "edge", price(500)))
	assert.Equal(t, DecisionOverThreshold, n.Notify(ctx, "c1", "B", price(600)))
	assert.Equal(t, DecisionUnpriced, n.Notify(ctx, "c1", "C", decimal.NullDecimal{}))

	assert.Equal(t, []string{"A", "edge"}, op.opened)
	assert.Equal(t, 2, bp.beeps)
}

func TestNotifyUnpricedOpenPolicy(t *testing.T) {
	op, bp := &MockOpener{}, &MockBeeper{}
	n := newTestNotifier(UnpricedOpen, op, bp, nil)

	assert.Equal(t, DecisionOpened, n.Notify(context.Background(), "c1", "C", decimal.NullDecimal{}))
	assert.Equal(t, []string{"C"}, op.opened)
	assert.Equal(t, 1, bp.beeps)
}

func TestNotifySwallowsSideEffectFailures(t *testing.T) {
	op := &MockOpener{err: errors.New("no browser")}
	bp := &MockBeeper{err: errors.New("no terminal")}
	pub := &MockPublisher{err: errors.New("redis down")}
	n := newTestNotifier(UnpricedLog, op, bp, pub)

	assert.NotPanics(t, func() {
		assert.Equal(t, DecisionOpened, n.Notify(context.Background(), "c1", "A", price(1)))
	})
	assert.Equal(t, []string{"A"}, op.opened)
}

func TestNotifyRecoversOpenerPanic(t *testing.T) {
	op, bp := &MockOpener{panic: true}, &MockBeeper{}
	n := newTestNotifier(UnpricedLog, op, bp, nil)

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "c1", "A", price(1))
	})
	assert.Equal(t, 1, bp.beeps)
}

func TestNotifyPublishesEveryListing(t *testing.T) {
	op, bp, pub := &MockOpener{}, &MockBeeper{}, &MockPublisher{}
	n := newTestNotifier(UnpricedLog, op, bp, pub)
	ctx := context.Background()

	n.Notify(ctx, "cycle-7", "A", price(400))
	n.Notify(ctx, "cycle-7", "C", decimal.NullDecimal{})

	require.Len(t, pub.events, 2)
	assert.Equal(t, "A", pub.events[0].ID)
	assert.Equal(t, "400", pub.events[0].Price)
	assert.True(t, pub.events[0].Opened)
	assert.Equal(t, "cycle-7", pub.events[0].CycleID)
	assert.Equal(t, "macbook", pub.events[0].Query)

	assert.Equal(t, "C", pub.events[1].ID)
	assert.Empty(t, pub.events[1].Price)
	assert.False(t, pub.events[1].Opened)
}

func TestNotifyRejectsCentsOverThreshold(t *testing.T) {
	op, bp := &MockOpener{}, &MockBeeper{}
	n := newTestNotifier(UnpricedLog, op, bp, nil)

	// 33 065 RUB at 66 RUB per USD
	over := decimal.NewNullDecimal(decimal.RequireFromString("500.98"))
	assert.Equal(t, DecisionOverThreshold, n.Notify(context.Background(), "c1", "cents", over))
	assert.Empty(t, op.opened)
	assert.Zero(t, bp.beeps)
}
