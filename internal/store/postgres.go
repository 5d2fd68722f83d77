// Package store persists quotes in PostgreSQL and reads them back for the
// dashboard.
package store

import (
	"context"
	"fmt"
	"time"

	"stockwatch/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

// Writer is what the collector needs.
type Writer interface {
	SaveQuotes(ctx context.Context, quotes []models.Quote) error
}

// Reader is what the dashboard needs.
type Reader interface {
	// Symbols lists every symbol with at least one stored quote.
	Symbols(ctx context.Context) ([]string, error)
	// History returns the newest limit quotes of symbol, oldest first.
	// limit <= 0 returns all of them.
	History(ctx context.Context, symbol string, limit int) ([]models.Quote, error)
	// Latest returns the newest quote of each symbol.
	Latest(ctx context.Context) ([]models.Quote, error)
	// RecentReadings returns all quotes of the newest n scrape cycles,
	// oldest first.
	RecentReadings(ctx context.Context, n int) ([]models.Quote, error)
}

type Store struct {
	pool Pool
}

var (
	_ Writer = &Store{}
	_ Reader = &Store{}
)

type Config struct {
	MaxConns int32
	Migrate  bool
}

type Option func(*Config) *Config

func WithMaxConns(n int32) Option {
	return func(c *Config) *Config {
		c.MaxConns = n
		return c
	}
}

func WithMigrate(migrate bool) Option {
	return func(c *Config) *Config {
		c.Migrate = migrate
		return c
	}
}

// Open connects to url and, with WithMigrate(true), creates the schema.
func Open(ctx context.Context, url string, options ...Option) (*Store, error) {
	c := &Config{}
	for _, option := range options {
		c = option(c)
	}

	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}

	pool, err := pgxpool.ConnectConfig(ctx, pcfg)
	if err != nil {
		return nil, classify("connect", err)
	}

	s := New(Wrap(pool))
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if c.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func New(pool Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.pool.Ping(ctx))
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates tables and indexes which do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

// SaveQuotes upserts all quotes in a single transaction: either the whole
// cycle is stored or none of it.
func (s *Store) SaveQuotes(ctx context.Context, quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("save quotes: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range quotes {
		_, err := tx.Exec(ctx, upsertQuote,
			q.Symbol, q.ObservedAt, q.Price.String(), q.CycleID.String(), q.Source,
		)
		if err != nil {
			return classify("upsert "+q.Symbol, err)
		}
	}
	return classify("commit", tx.Commit(ctx))
}

func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, selectSymbols)
	if err != nil {
		return nil, classify("symbols", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, classify("symbols", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("symbols", err)
	}
	return symbols, nil
}

func (s *Store) History(ctx context.Context, symbol string, limit int) ([]models.Quote, error) {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	return s.queryQuotes(ctx, "history", selectHistory, symbol, lim)
}

func (s *Store) Latest(ctx context.Context) ([]models.Quote, error) {
	return s.queryQuotes(ctx, "latest", selectLatest)
}

func (s *Store) RecentReadings(ctx context.Context, n int) ([]models.Quote, error) {
	if n <= 0 {
		return []models.Quote{}, nil
	}
	return s.queryQuotes(ctx, "recent readings", selectRecentReadings, n)
}

func (s *Store) queryQuotes(ctx context.Context, op string, sql string, args ...interface{}) ([]models.Quote, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	quotes, err := scanQuotes(rows)
	if err != nil {
		return nil, classify(op, err)
	}
	return quotes, nil
}

// scanQuotes reads rows of (symbol, price::text, observed_at, cycle_id::text, source).
func scanQuotes(rows pgx.Rows) ([]models.Quote, error) {
	quotes := []models.Quote{}
	for rows.Next() {
		var (
			q          models.Quote
			priceText  string
			cycleText  string
			observedAt time.Time
		)
		if err := rows.Scan(&q.Symbol, &priceText, &observedAt, &cycleText, &q.Source); err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(priceText)
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", q.Symbol, err)
		}
		cycle, err := uuid.Parse(cycleText)
		if err != nil {
			return nil, fmt.Errorf("cycle of %s: %w", q.Symbol, err)
		}
		q.Price = p
		q.CycleID = cycle
		q.ObservedAt = observedAt
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
