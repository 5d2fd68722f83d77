package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/utils"

	"golang.org/x/net/html"
)

const maxPageBytes = 8 << 20

// NewHTTPClient returns an http.Client tuned for many small page fetches
// against a single host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// HTTPSource downloads the quote page and reads the price element from the
// static HTML.
type HTTPSource struct {
	client      *http.Client
	urlTemplate string
	exchange    string
	userAgent   string
	classes     []string
}

func NewHTTPSource(cfg utils.ScraperConfig, client *http.Client) (*HTTPSource, error) {
	classes, err := ParseClassSelector(cfg.PriceSelector)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = NewHTTPClient(cfg.TimeoutDuration())
	}
	return &HTTPSource{
		client:      client,
		urlTemplate: cfg.URLTemplate,
		exchange:    cfg.Exchange,
		userAgent:   cfg.UserAgent,
		classes:     classes,
	}, nil
}

func (h *HTTPSource) Name() string { return utils.BackendHTTP }

func (h *HTTPSource) URL(symbol string) string {
	return fmt.Sprintf(h.urlTemplate, symbol, h.exchange)
}

func (h *HTTPSource) PriceText(ctx context.Context, symbol string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(symbol), nil)
	if err != nil {
		return "", err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	n := findByClasses(doc, h.classes)
	if n == nil {
		return "", ErrPriceNotFound
	}
	return strings.TrimSpace(textContent(n)), nil
}

// ParseClassSelector accepts compound class selectors such as
// ".YMlKec.fxKbKc" and returns the class names.
func ParseClassSelector(sel string) ([]string, error) {
	sel = strings.TrimSpace(sel)
	if !strings.HasPrefix(sel, ".") {
		return nil, fmt.Errorf("selector %q: only class selectors are supported", sel)
	}
	parts := strings.Split(sel[1:], ".")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, " >+~#[]():*,") {
			return nil, fmt.Errorf("selector %q: only class selectors are supported", sel)
		}
	}
	return parts, nil
}

// findByClasses returns the first element, in document order, carrying
// every class in classes.
func findByClasses(n *html.Node, classes []string) *html.Node {
	if n.Type == html.ElementNode && hasClasses(n, classes) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClasses(c, classes); found != nil {
			return found
		}
	}
	return nil
}

func hasClasses(n *html.Node, classes []string) bool {
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != "class" {
			continue
		}
		have := strings.Fields(a.Val)
	next:
		for _, want := range classes {
			for _, h := range have {
				if h == want {
					continue next
				}
			}
			return false
		}
		return true
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
