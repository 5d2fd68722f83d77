// Package collector runs the scrape cycles: fetch every symbol, store the
// quotes, hand them to the publishers, sleep, repeat.
package collector

//go:generate mockgen -package=collector_test -destination=mock_collector_test.go -source=collector.go

import (
	"context"
	"errors"
	"time"

	"stockwatch/internal/utils"
	"stockwatch/models"

	"github.com/google/uuid"
)

var errDurationElapsed = errors.New("collection duration elapsed")

// Fetcher is implemented by *scraper.Scraper.
type Fetcher interface {
	GetQuotes(ctx context.Context, symbols []string, at time.Time, cycle uuid.UUID) ([]models.Quote, map[string]error)
}

// Writer is implemented by *store.Store.
type Writer interface {
	SaveQuotes(ctx context.Context, quotes []models.Quote) error
}

// Publisher receives the quotes fetched in a cycle, whether or not the
// writer stored them. Cycles that fetched nothing are not published.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, quotes []models.Quote) error
}

// Refresher is implemented by sources holding long-lived sessions which
// can be recycled when a whole cycle fails.
type Refresher interface {
	Refresh() error
}

// CycleResult describes one finished scrape cycle.
type CycleResult struct {
	ID       uuid.UUID
	At       time.Time
	Quotes   []models.Quote
	Failures map[string]error
	// StoreErr is the error of SaveQuotes, if any. The cycle is not retried.
	StoreErr error
}

type Collector struct {
	fetcher    Fetcher
	writer     Writer
	publishers []Publisher
	refresher  Refresher
	logger     *utils.Logger
	perf       *utils.PerformanceTracker

	symbols  []string
	interval time.Duration
	duration time.Duration
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Collector)

func WithPublisher(p Publisher) Option {
	return func(c *Collector) {
		c.publishers = append(c.publishers, p)
	}
}

func WithRefresher(r Refresher) Option {
	return func(c *Collector) {
		c.refresher = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithSchedule overrides the interval and total duration of the config.
func WithSchedule(interval, duration time.Duration) Option {
	return func(c *Collector) {
		c.interval = interval
		c.duration = duration
	}
}

func WithPerformanceTracker(pt *utils.PerformanceTracker) Option {
	return func(c *Collector) {
		c.perf = pt
	}
}

func New(fetcher Fetcher, writer Writer, logger *utils.Logger, cfg utils.ScraperConfig, symbols []string, options ...Option) *Collector {
	c := &Collector{
		fetcher:  fetcher,
		writer:   writer,
		logger:   logger,
		perf:     utils.NewPerformanceTracker(),
		symbols:  symbols,
		interval: cfg.IntervalDuration(),
		duration: cfg.TotalDuration(),
		loc:      cfg.Location(),
		now:      time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Collector) Performance() *utils.PerformanceTracker {
	return c.perf
}

// Run repeats scrape cycles, sleeping the interval between the end of one
// cycle and the start of the next.
//
// It returns nil once the configured duration has elapsed, and the cause
// of ctx when ctx ends first.
func (c *Collector) Run(ctx context.Context) error {
	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.duration, errDurationElapsed)
		defer cancel()
	}

	c.logger.Info("Collecting %d symbols every %v", len(c.symbols), c.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.finish(ctx)
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return c.finish(ctx)
		}

		c.RunCycle(ctx)
		timer.Reset(c.interval)
	}
}

func (c *Collector) finish(ctx context.Context) error {
	if err := context.Cause(ctx); !errors.Is(err, errDurationElapsed) {
		return err
	}
	c.logger.Info("Collection finished after %v", c.duration)
	return nil
}

// RunCycle fetches, stores and publishes one reading of every symbol.
func (c *Collector) RunCycle(ctx context.Context) CycleResult {
	defer c.perf.StartStep("cycle")()

	res := CycleResult{
		ID: uuid.New(),
		At: c.now().In(c.loc),
	}

	stop := c.perf.StartStep("fetch")
	res.Quotes, res.Failures = c.fetcher.GetQuotes(ctx, c.symbols, res.At, res.ID)
	stop()

	for _, q := range res.Quotes {
		c.logger.Info("%s: %s", q.Symbol, q.Price.StringFixed(2))
	}
	for sym, err := range res.Failures {
		c.logger.Warn("%s: %v", sym, err)
	}

	if len(res.Quotes) == 0 {
		if len(res.Failures) > 0 && ctx.Err() == nil {
			c.refresh()
		}
		c.logger.Warn("Cycle %s: no quotes", res.ID)
		return res
	}

	stop = c.perf.StartStep("store")
	res.StoreErr = c.writer.SaveQuotes(ctx, res.Quotes)
	stop()
	if res.StoreErr != nil {
		c.logger.Error("Cycle %s: store failed: %v", res.ID, res.StoreErr)
	}

	if len(c.publishers) > 0 {
		stop = c.perf.StartStep("publish")
		for _, p := range c.publishers {
			if err := p.Publish(ctx, res.Quotes); err != nil {
				c.logger.Warn("Cycle %s: publish to %s failed: %v", res.ID, p.Name(), err)
			}
		}
		stop()
	}

	c.logger.Info("Cycle %s at %s: %d fetched, %d failed", res.ID, res.At.Format(time.DateTime), len(res.Quotes), len(res.Failures))
	return res
}

func (c *Collector) refresh() {
	if c.refresher == nil {
		return
	}
	c.logger.Warn("Every symbol failed, refreshing source")
	if err := c.refresher.Refresh(); err != nil {
		c.logger.Error("Failed to refresh source: %v", err)
	}
}
