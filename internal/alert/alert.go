// Package alert emails a recipient once when a symbol's latest price rises
// above a threshold, and re-arms when the price falls back.
package alert

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/utils"
	"stockwatch/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRule = errors.New("invalid alert rule")
	ErrNoRule      = errors.New("no alert rule")
)

type State string

const (
	StateSent        State = "sent"
	StateAlreadySent State = "already_sent"
	StateBelow       State = "below"
	StateNoData      State = "no_data"
	StateFailed      State = "failed"
)

type Rule struct {
	Symbol    string          `json:"symbol"`
	Threshold decimal.Decimal `json:"threshold"`
	Email     string          `json:"email"`
}

// Normalize validates r and returns it with Email reduced to the bare
// address, so "Ops <ops@example.com>" becomes "ops@example.com".
func (r Rule) Normalize() (Rule, error) {
	var errs []error
	if r.Symbol == "" {
		errs = append(errs, errors.New("symbol is empty"))
	}
	if r.Threshold.IsNegative() {
		errs = append(errs, errors.New("threshold is negative"))
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil {
		errs = append(errs, fmt.Errorf("email %q: %w", r.Email, err))
	} else {
		r.Email = addr.Address
	}
	if err := errors.Join(errs...); err != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return r, nil
}

func (r Rule) same(o Rule) bool {
	return r.Symbol == o.Symbol && r.Email == o.Email && r.Threshold.Equal(o.Threshold)
}

// RulesFromConfig converts the configured rules.
func RulesFromConfig(cfg utils.AlertsConfig) []Rule {
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, Rule{
			Symbol:    strings.ToUpper(strings.TrimSpace(r.Symbol)),
			Threshold: decimal.NewFromFloat(r.Threshold),
			Email:     r.Email,
		})
	}
	return rules
}

// Alert is what a Notifier delivers.
type Alert struct {
	Symbol    string
	Price     decimal.Decimal
	Threshold decimal.Decimal
	Email     string
	At        time.Time
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Status is the outcome of evaluating one rule.
type Status struct {
	Rule
	State State           `json:"state"`
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
	Sent  bool            `json:"sent"`
	Error string          `json:"error,omitempty"`
}

type entry struct {
	rule Rule
	sent bool
	last Status
}

// Monitor holds the rules and remembers which alerts were sent. It is safe
// for concurrent use.
type Monitor struct {
	notifier Notifier
	logger   *utils.Logger

	mu    sync.Mutex
	rules map[string]*entry
}

func NewMonitor(notifier Notifier, logger *utils.Logger, rules ...Rule) (*Monitor, error) {
	m := &Monitor{
		notifier: notifier,
		logger:   logger,
		rules:    make(map[string]*entry),
	}
	for _, r := range rules {
		if _, err := m.SetRule(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetRule adds or replaces the rule of r.Symbol. A new threshold or
// recipient re-arms the alert.
func (m *Monitor) SetRule(r Rule) (Status, error) {
	r, err := r.Normalize()
	if err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rules[r.Symbol]
	if ok && e.rule.same(r) {
		return e.last, nil
	}
	e = &entry{rule: r, last: Status{Rule: r, State: StateNoData}}
	m.rules[r.Symbol] = e
	return e.last, nil
}

func (m *Monitor) DeleteRule(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[symbol]; !ok {
		return fmt.Errorf("%w for %s", ErrNoRule, symbol)
	}
	delete(m.rules, symbol)
	return nil
}

// Statuses returns the last evaluation of every rule, by symbol.
func (m *Monitor) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.rules))
	for _, e := range m.rules {
		out = append(out, e.last)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

type pending struct {
	rule  Rule
	quote models.Quote
}

// Evaluate checks every rule against the latest quotes. A price above the
// threshold sends one alert; further evaluations report it as already sent
// until the price is at or below the threshold again.
//
// A failed notification is retried on the next evaluation.
func (m *Monitor) Evaluate(ctx context.Context, latest []models.Quote) []Status {
	bySymbol := make(map[string]models.Quote, len(latest))
	for _, q := range latest {
		bySymbol[q.Symbol] = q
	}

	var toSend []pending
	m.mu.Lock()
	for sym, e := range m.rules {
		q, ok := bySymbol[sym]
		switch {
		case !ok:
			e.last = Status{Rule: e.rule, State: StateNoData, Sent: e.sent}
		case !q.Price.GreaterThan(e.rule.Threshold):
			e.sent = false
			e.last = Status{Rule: e.rule, State: StateBelow, Price: q.Price, At: q.ObservedAt}
		case e.sent:
			e.last = Status{Rule: e.rule, State: StateAlreadySent, Price: q.Price, At: q.ObservedAt, Sent: true}
		default:
			toSend = append(toSend, pending{rule: e.rule, quote: q})
		}
	}
	m.mu.Unlock()

	results := make(map[string]Status, len(toSend))
	for _, p := range toSend {
		st := Status{Rule: p.rule, State: StateSent, Price: p.quote.Price, At: p.quote.ObservedAt, Sent: true}
		err := m.notifier.Notify(ctx, Alert{
			Symbol:    p.rule.Symbol,
			Price:     p.quote.Price,
			Threshold: p.rule.Threshold,
			Email:     p.rule.Email,
			At:        p.quote.ObservedAt,
		})
		if err != nil {
			m.logger.Error("Failed to send alert for %s to %s: %v", p.rule.Symbol, p.rule.Email, err)
			st.State, st.Sent, st.Error = StateFailed, false, err.Error()
		} else {
			m.logger.Info("Alert sent: %s = %s > %s", p.rule.Symbol, p.quote.Price, p.rule.Threshold)
		}
		results[p.rule.Symbol] = st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range toSend {
		e, ok := m.rules[p.rule.Symbol]
		// the rule was edited or removed while sending
		if !ok || !e.rule.same(p.rule) {
			continue
		}
		st := results[p.rule.Symbol]
		e.sent = st.Sent
		e.last = st
	}

	out := make([]Status, 0, len(m.rules))
	for _, e := range m.rules {
		out = append(out, e.last)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
