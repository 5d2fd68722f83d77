package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

type ComparePoint struct {
	ObservedAt time.Time       `json:"observedAt"`
	Time       string          `json:"time"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
}

// Compare keeps the last limit readings in which every symbol has a price
// and flattens them to one point per symbol and reading, grouped by symbol
// in the given order. Times are shown in loc.
func Compare(readings []Reading, symbols []string, limit int, loc *time.Location) []ComparePoint {
	complete := []Reading{}
	for _, r := range readings {
		if hasAll(r, symbols) {
			complete = append(complete, r)
		}
	}
	complete = tail(complete, limit)

	points := make([]ComparePoint, 0, len(complete)*len(symbols))
	for _, sym := range symbols {
		for _, r := range complete {
			at := r.At.In(loc)
			points = append(points, ComparePoint{
				ObservedAt: at,
				Time:       at.Format(TimeLayout),
				Symbol:     sym,
				Price:      r.Prices[sym],
			})
		}
	}
	return points
}

func hasAll(r Reading, symbols []string) bool {
	for _, sym := range symbols {
		if _, ok := r.Prices[sym]; !ok {
			return false
		}
	}
	return true
}
