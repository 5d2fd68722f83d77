package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockwatch/internal/price"
	"stockwatch/internal/utils"
	"stockwatch/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrPriceNotFound = errors.New("price element not found")
	ErrHTTPStatus    = errors.New("unexpected HTTP status")
)

// Source returns the price text displayed for a symbol, e.g. "₹1,520.35".
type Source interface {
	Name() string
	PriceText(ctx context.Context, symbol string) (string, error)
}

type Scraper struct {
	source      Source
	logger      *utils.Logger
	limiter     *rate.Limiter
	concurrency int
	timeout     time.Duration
}

func NewScraper(source Source, logger *utils.Logger, config *utils.Config) *Scraper {
	limit := rate.Inf
	if rps := config.Scraper.RequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
	}
	concurrency := config.Scraper.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scraper{
		source:      source,
		logger:      logger,
		limiter:     rate.NewLimiter(limit, concurrency),
		concurrency: concurrency,
		timeout:     config.Scraper.TimeoutDuration(),
	}
}

func (s *Scraper) Source() Source {
	return s.source
}

// GetQuote fetches and parses the current price of one symbol.
func (s *Scraper) GetQuote(ctx context.Context, symbol string, at time.Time, cycle uuid.UUID) (models.Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Quote{}, fmt.Errorf("%s: %w", symbol, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.source.PriceText(ctx, symbol)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%s: %w", symbol, err)
	}
	p, err := price.Parse(text)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%s: %w", symbol, err)
	}

	q := models.Quote{
		Symbol:     symbol,
		Price:      p,
		ObservedAt: at,
		CycleID:    cycle,
		Source:     s.source.Name(),
	}
	if err := q.Validate(); err != nil {
		return models.Quote{}, err
	}
	return q, nil
}

// GetQuotes fetches every symbol with bounded concurrency. Quotes come back
// in the order of symbols; symbols which failed are absent from the quotes
// and present in the error map.
func (s *Scraper) GetQuotes(ctx context.Context, symbols []string, at time.Time, cycle uuid.UUID) ([]models.Quote, map[string]error) {
	results := make([]*models.Quote, len(symbols))
	failures := make(map[string]error)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			q, err := s.GetQuote(ctx, symbol, at, cycle)
			if err != nil {
				s.logger.Debug("fetch %s failed: %v", symbol, err)
				mu.Lock()
				failures[symbol] = err
				mu.Unlock()
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]models.Quote, 0, len(symbols))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes, failures
}
