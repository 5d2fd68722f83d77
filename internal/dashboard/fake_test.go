package dashboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockwatch/internal/alert"
	"stockwatch/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var base = time.Date(2025, 6, 2, 3, 45, 0, 0, time.UTC)

// memReader keeps quotes in memory, oldest first.
type memReader struct {
	mu     sync.Mutex
	quotes []models.Quote
	err    error
	calls  map[string]int
}

// cycles appends one scrape cycle per map.
func newMemReader(cycles ...map[string]string) *memReader {
	r := &memReader{calls: map[string]int{}}
	for i, prices := range cycles {
		id := uuid.New()
		syms := make([]string, 0, len(prices))
		for s := range prices {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		for _, s := range syms {
			r.quotes = append(r.quotes, models.Quote{
				Symbol:     s,
				Price:      decimal.RequireFromString(prices[s]),
				ObservedAt: base.Add(time.Duration(i) * time.Minute),
				CycleID:    id,
				Source:     "test",
			})
		}
	}
	return r
}

func (r *memReader) call(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	return r.err
}

func (r *memReader) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *memReader) Symbols(context.Context) ([]string, error) {
	if err := r.call("symbols"); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, q := range r.quotes {
		if !seen[q.Symbol] {
			seen[q.Symbol] = true
			out = append(out, q.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memReader) History(_ context.Context, symbol string, limit int) ([]models.Quote, error) {
	if err := r.call("history"); err != nil {
		return nil, err
	}
	out := []models.Quote{}
	for _, q := range r.quotes {
		if q.Symbol == symbol {
			out = append(out, q)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memReader) Latest(context.Context) ([]models.Quote, error) {
	if err := r.call("latest"); err != nil {
		return nil, err
	}
	latest := map[string]models.Quote{}
	for _, q := range r.quotes {
		latest[q.Symbol] = q
	}
	out := []models.Quote{}
	for _, q := range latest {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *memReader) RecentReadings(_ context.Context, n int) ([]models.Quote, error) {
	if err := r.call("recent"); err != nil {
		return nil, err
	}
	cycles := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	for _, q := range r.quotes {
		if !seen[q.CycleID] {
			seen[q.CycleID] = true
			cycles = append(cycles, q.CycleID)
		}
	}
	if len(cycles) > n {
		cycles = cycles[len(cycles)-n:]
	}
	keep := map[uuid.UUID]bool{}
	for _, c := range cycles {
		keep[c] = true
	}
	out := []models.Quote{}
	for _, q := range r.quotes {
		if keep[q.CycleID] {
			out = append(out, q)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []alert.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return nil
}
