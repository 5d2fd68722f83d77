package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"stockwatch/internal/utils"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// BrowserSource renders the quote page in headless Chrome. Use it when the
// price is filled in by JavaScript and the static HTML is not enough.
type BrowserSource struct {
	logger *utils.Logger
	config *utils.Config

	mu            sync.RWMutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserSource launches the browser and checks that it responds.
func NewBrowserSource(logger *utils.Logger, config *utils.Config) (*BrowserSource, error) {
	logger.Debug("Initializing Chrome")
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.NoSandbox,
		chromedp.Flag("headless", config.Scraper.Browser.Headless),
		chromedp.Flag("enable-logging", config.Scraper.Browser.Debug),
		chromedp.UserAgent(config.Scraper.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	b := &BrowserSource{
		logger:      logger,
		config:      config,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
	if err := b.startBrowser(); err != nil {
		allocCancel()
		return nil, err
	}
	return b, nil
}

func (b *BrowserSource) startBrowser() error {
	ctx, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithLogf(b.logger.Debug))
	if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	b.mu.Lock()
	b.browserCtx, b.browserCancel = ctx, cancel
	b.mu.Unlock()
	return nil
}

func (b *BrowserSource) Name() string { return utils.BackendBrowser }

func (b *BrowserSource) URL(symbol string) string {
	return fmt.Sprintf(b.config.Scraper.URLTemplate, symbol, b.config.Scraper.Exchange)
}

// PriceText opens the quote page in a fresh tab and reads the price element.
func (b *BrowserSource) PriceText(ctx context.Context, symbol string) (string, error) {
	b.mu.RLock()
	parent := b.browserCtx
	b.mu.RUnlock()

	tabCtx, cancelTab := chromedp.NewContext(parent)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	// Consent and cookie pop-ups sometimes come as JavaScript dialogs.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if ev, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			b.logger.Debug("Dialog detected: %s", ev.Message)
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					b.logger.Debug("Failed to handle dialog: %v", err)
				}
			}()
		}
	})

	expr, err := priceTextExpression(b.config.Scraper.PriceSelector)
	if err != nil {
		return "", err
	}

	var text string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(b.URL(symbol)),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(expr, &text),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	if text == "" {
		return "", ErrPriceNotFound
	}
	return text, nil
}

// priceTextExpression builds a script returning the trimmed text of the
// first element matching sel, or "" when there is none.
func priceTextExpression(sel string) (string, error) {
	quoted, err := json.Marshal(sel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		(() => {
			const el = document.querySelector(%s);
			return el ? el.textContent.trim() : "";
		})()
	`, quoted), nil
}

// PreflightCheck verifies all dependencies and configurations
func (b *BrowserSource) PreflightCheck() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"Config Validation", b.validateConfig},
		{"Directory Structure", b.checkDirectories},
		{"Browser Launch", b.testBrowserLaunch},
		{"Network Settings", b.testNetworkSettings},
	}

	for _, c := range checks {
		b.logger.Debug("Running preflight check: %s", c.name)
		if err := c.check(); err != nil {
			return fmt.Errorf("%s check failed: %w", c.name, err)
		}
		b.logger.Debug("%s check passed", c.name)
	}

	return nil
}

func (b *BrowserSource) validateConfig() error {
	if b.config == nil {
		return fmt.Errorf("configuration is nil")
	}
	if b.config.Scraper.Timeout <= 0 {
		return fmt.Errorf("invalid timeout value")
	}
	if b.config.Scraper.PriceSelector == "" {
		return fmt.Errorf("empty price selector")
	}
	return nil
}

func (b *BrowserSource) checkDirectories() error {
	if b.config.Log.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(b.config.Log.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", b.config.Log.Dir, err)
	}
	return nil
}

func (b *BrowserSource) testBrowserLaunch() error {
	b.mu.RLock()
	parent := b.browserCtx
	b.mu.RUnlock()

	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	return chromedp.Run(ctx, chromedp.Navigate("about:blank"))
}

func (b *BrowserSource) testNetworkSettings() error {
	b.mu.RLock()
	parent := b.browserCtx
	b.mu.RUnlock()

	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	return chromedp.Run(ctx,
		network.Enable(),
		network.SetCacheDisabled(true),
		emulation.SetUserAgentOverride(b.config.Scraper.UserAgent),
	)
}

// Refresh replaces the browser session, keeping the allocator.
func (b *BrowserSource) Refresh() error {
	b.logger.Debug("Refreshing browser session")

	b.mu.Lock()
	old := b.browserCancel
	b.mu.Unlock()
	if old != nil {
		old()
	}
	return b.startBrowser()
}

// Close shuts the browser down gracefully, then releases the allocator.
func (b *BrowserSource) Close() {
	b.logger.Info("Closing browser...")

	b.mu.Lock()
	ctx, cancel := b.browserCtx, b.browserCancel
	b.browserCtx, b.browserCancel = nil, nil
	b.mu.Unlock()

	if ctx != nil {
		if err := chromedp.Cancel(ctx); err != nil {
			b.logger.Debug("Error during graceful shutdown: %v", err)
		}
		cancel()
	}
	b.allocCancel()
	b.logger.Info("Browser closed successfully")
}
