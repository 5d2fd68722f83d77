package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Change struct {
	Symbol  string          `json:"symbol"`
	First   decimal.Decimal `json:"first"`
	Last    decimal.Decimal `json:"last"`
	Percent decimal.Decimal `json:"percent"`
}

type Movers struct {
	Window  int      `json:"window"`
	Gainers []Change `json:"gainers"`
	Losers  []Change `json:"losers"`
}

// Changes computes, for every symbol priced at least twice within the last
// window readings, the percentage change from its first to its last price
// in that window, rounded to two decimals. A first price of zero counts as
// no change.
func Changes(readings []Reading, window int) []Change {
	recent := tail(readings, window)

	type span struct {
		first, last decimal.Decimal
		n           int
	}
	spans := make(map[string]*span)
	for _, r := range recent {
		for sym, p := range r.Prices {
			s, ok := spans[sym]
			if !ok {
				spans[sym] = &span{first: p, last: p, n: 1}
				continue
			}
			s.last = p
			s.n++
		}
	}

	changes := []Change{}
	for sym, s := range spans {
		if s.n < 2 {
			continue
		}
		pct := decimal.Zero
		if !s.first.IsZero() {
			pct = s.last.Sub(s.first).Div(s.first).Mul(hundred).Round(2)
		}
		changes = append(changes, Change{Symbol: sym, First: s.first, Last: s.last, Percent: pct})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Symbol < changes[j].Symbol })
	return changes
}

// TopMovers returns up to top gainers (largest change first) and losers
// (smallest change first).
func TopMovers(readings []Reading, window, top int) Movers {
	changes := Changes(readings, window)

	gainers := append([]Change(nil), changes...)
	sort.SliceStable(gainers, func(i, j int) bool {
		return gainers[i].Percent.GreaterThan(gainers[j].Percent)
	})
	losers := append([]Change(nil), changes...)
	sort.SliceStable(losers, func(i, j int) bool {
		return losers[i].Percent.LessThan(losers[j].Percent)
	})

	return Movers{
		Window:  window,
		Gainers: head(gainers, top),
		Losers:  head(losers, top),
	}
}

type SymbolPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type Snapshot struct {
	At      time.Time     `json:"at"`
	Time    string        `json:"time"`
	Highest []SymbolPrice `json:"highest"`
	Lowest  []SymbolPrice `json:"lowest"`
}

// TakeSnapshot ranks the prices of the newest reading.
func TakeSnapshot(readings []Reading, top int, loc *time.Location) (Snapshot, error) {
	if len(readings) == 0 {
		return Snapshot{}, ErrNoData
	}
	latest := readings[len(readings)-1]

	prices := make([]SymbolPrice, 0, len(latest.Prices))
	for sym, p := range latest.Prices {
		prices = append(prices, SymbolPrice{Symbol: sym, Price: p})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Symbol < prices[j].Symbol })

	highest := append([]SymbolPrice(nil), prices...)
	sort.SliceStable(highest, func(i, j int) bool {
		return highest[i].Price.GreaterThan(highest[j].Price)
	})
	lowest := append([]SymbolPrice(nil), prices...)
	sort.SliceStable(lowest, func(i, j int) bool {
		return lowest[i].Price.LessThan(lowest[j].Price)
	})

	at := latest.At.In(loc)
	return Snapshot{
		At:      at,
		Time:    at.Format(TimeLayout),
		Highest: head(highest, top),
		Lowest:  head(lowest, top),
	}, nil
}

func head[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
