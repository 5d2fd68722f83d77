// Package main runs the price collector: every few seconds it scrapes the
// current price of each watched ticker and stores the reading in
// PostgreSQL, optionally fanning it out to Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/collector"
	"stockwatch/internal/publish"
	"stockwatch/internal/scraper"
	"stockwatch/internal/store"
	"stockwatch/internal/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type options struct {
	configPath string
	ticker     string
	tickerFile string
	once       bool
	duration   time.Duration
}

// newSource builds the page source selected by scraper.backend. The browser
// backend is checked against the quote page before it is returned.
//
// Parameters:
//   - logger: Logger for tracking the setup
//   - config: Configuration selecting and tuning the backend
//
// Returns:
//   - scraper.Source: The ready page source
//   - func(): Function releasing the source
//   - error: Any error that occurred during setup
func newSource(logger *utils.Logger, config *utils.Config) (scraper.Source, func(), error) {
	switch config.Scraper.Backend {
	case utils.BackendBrowser:
		b, err := scraper.NewBrowserSource(logger, config)
		if err != nil {
			return nil, nil, err
		}
		if err := b.PreflightCheck(); err != nil {
			b.Close()
			return nil, nil, fmt.Errorf("preflight check failed: %w", err)
		}
		return b, b.Close, nil
	default:
		h, err := scraper.NewHTTPSource(config.Scraper, nil)
		if err != nil {
			return nil, nil, err
		}
		return h, func() {}, nil
	}
}

// processSingleTicker fetches the current price of one ticker and logs it.
// Nothing is stored.
//
// Parameters:
//   - ctx: Context bounding the fetch
//   - s: The scraper instance
//   - logger: Logger for tracking the process
//   - config: Configuration supplying the market time zone
//   - ticker: The stock ticker symbol to process
//
// Returns:
//   - error: Any error that occurred during fetching
func processSingleTicker(ctx context.Context, s *scraper.Scraper, logger *utils.Logger, config *utils.Config, ticker string) error {
	logger.Info("Processing ticker: %s", ticker)

	at := time.Now().In(config.Scraper.Location())
	q, err := s.GetQuote(ctx, ticker, at, uuid.New())
	if err != nil {
		return err
	}
	logger.Info("%s: %s at %s (%s)", q.Symbol, q.Price.StringFixed(2), at.Format(time.DateTime), s.Source().Name())
	return nil
}

// newPublishers connects the optional Redis sink. An unreachable Redis
// disables publishing instead of failing the collector.
//
// Parameters:
//   - ctx: Context bounding the connection check
//   - logger: Logger for tracking the connection
//   - config: Configuration holding the Redis address
//
// Returns:
//   - []collector.Option: Options registering the publishers, empty when disabled
//   - func(): Function closing the Redis client
func newPublishers(ctx context.Context, logger *utils.Logger, config *utils.Config) ([]collector.Option, func()) {
	if config.Redis.Addr == "" {
		return nil, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis at %s is unavailable, publishing disabled: %v", config.Redis.Addr, err)
		rdb.Close()
		return nil, func() {}
	}

	logger.Info("Publishing quotes to Redis at %s", config.Redis.Addr)
	ttl := time.Duration(config.Redis.TTL) * time.Second
	return []collector.Option{collector.WithPublisher(publish.NewRedis(rdb, ttl))}, func() { rdb.Close() }
}

// run collects with config until the collection ends, ctx is cancelled or
// the config file changes.
//
// Parameters:
//   - ctx: Context stopping the collector when cancelled
//   - logger: Logger for tracking the process
//   - config: Configuration for the scraper, database and publishers
//   - opts: Command-line options; opts.duration is the time left to collect,
//     zero for no limit
//
// Returns:
//   - reload: True when the config file changed and run should be repeated
//   - err: Any error that stopped the collector
func run(ctx context.Context, logger *utils.Logger, config *utils.Config, opts options) (reload bool, err error) {
	symbols, err := config.Symbols()
	if opts.tickerFile != "" {
		symbols, err = utils.ReadTickersFromCSV(opts.tickerFile)
	}
	if err != nil {
		return false, fmt.Errorf("read tickers: %w", err)
	}

	src, closeSource, err := newSource(logger, config)
	if err != nil {
		return false, fmt.Errorf("initialize scraper: %w", err)
	}
	defer closeSource()
	s := scraper.NewScraper(src, logger, config)

	if opts.ticker != "" {
		return false, processSingleTicker(ctx, s, logger, config, opts.ticker)
	}
	if len(symbols) == 0 {
		return false, errors.New("no tickers configured; use scraper.tickers, scraper.tickersFile or -file")
	}

	st, err := store.Open(ctx, config.Database.URL,
		store.WithMigrate(config.Database.Migrate),
		store.WithMaxConns(int32(config.Scraper.Concurrency)+1),
	)
	if err != nil {
		return false, fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	collectorOpts, closePublishers := newPublishers(ctx, logger, config)
	defer closePublishers()
	if r, ok := src.(collector.Refresher); ok {
		collectorOpts = append(collectorOpts, collector.WithRefresher(r))
	}
	collectorOpts = append(collectorOpts, collector.WithSchedule(config.Scraper.IntervalDuration(), opts.duration))

	c := collector.New(s, st, logger, config.Scraper, symbols, collectorOpts...)
	defer func() {
		logger.Info("Aggregate Performance Report:\n%s", c.Performance().GenerateAggregateReport())
	}()

	if opts.once {
		return false, c.RunCycle(ctx).StoreErr
	}

	watchCtx, stopWatching, err := utils.UntilModifyContext(ctx, opts.configPath)
	if err != nil {
		logger.Warn("Config reload disabled: %v", err)
		watchCtx, stopWatching = ctx, func() {}
	}
	defer stopWatching()

	err = c.Run(watchCtx)
	switch {
	case err == nil:
		return false, nil
	case ctx.Err() != nil:
		logger.Info("Stopping: %v", context.Cause(ctx))
		return false, nil
	case watchCtx.Err() != nil:
		logger.Info("Reloading configuration: %v", err)
		return true, nil
	default:
		return false, err
	}
}

// remaining returns how much of the total collection time is left after
// elapsed. A zero total means no limit. ok is false once the time is used up.
func remaining(total, elapsed time.Duration) (left time.Duration, ok bool) {
	if total <= 0 {
		return 0, true
	}
	if left = total - elapsed; left <= 0 {
		return 0, false
	}
	return left, true
}

func main() {
	startTime := time.Now()

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to the YAML config (default $CONFIG_PATH or "+utils.DefaultConfigPath+")")
	flag.StringVar(&opts.ticker, "ticker", "", "Fetch a single ticker once, log its price and exit")
	flag.StringVar(&opts.tickerFile, "file", "", "Path to CSV file containing tickers")
	flag.BoolVar(&opts.once, "once", false, "Run one scrape cycle and exit")
	flag.DurationVar(&opts.duration, "duration", -1, "Total collection time, 0 for no limit (default from config)")
	flag.Parse()

	opts.configPath = utils.ConfigPath(opts.configPath)
	config, err := utils.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(config.Log, "collector")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info("Starting stock price collector")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		// A reload keeps counting from startTime.
		total := opts.duration
		if total < 0 {
			total = config.Scraper.TotalDuration()
		}
		left, ok := remaining(total, time.Since(startTime))
		if !ok {
			logger.Info("Collection finished after %v", total)
			break
		}
		runOpts := opts
		runOpts.duration = left

		reload, err := run(ctx, logger, config, runOpts)
		if err != nil {
			logger.Error("Collector failed: %v", err)
			logger.Close()
			os.Exit(1)
		}
		if !reload {
			break
		}

		next, err := utils.LoadConfig(opts.configPath)
		if err != nil {
			logger.Error("Keeping previous configuration: %v", err)
			continue
		}
		config = next
	}

	logger.Info("Total execution time: %v", time.Since(startTime).Round(time.Second))
}
