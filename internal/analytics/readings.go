// Package analytics turns stored quotes into the figures shown on the
// dashboard: trends, gainers and losers, price snapshots and comparisons.
package analytics

import (
	"errors"
	"sort"
	"time"

	"stockwatch/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TimeLayout formats reading times for display.
const TimeLayout = "02-01-2006 15:04"

var ErrNoData = errors.New("no data")

// Reading is one scrape cycle: the prices of every symbol fetched in it.
// Symbols which failed in that cycle are absent from Prices.
type Reading struct {
	CycleID uuid.UUID
	At      time.Time
	Prices  map[string]decimal.Decimal
}

// GroupReadings collects quotes by cycle, oldest reading first.
func GroupReadings(quotes []models.Quote) []Reading {
	index := make(map[uuid.UUID]int)
	readings := []Reading{}
	for _, q := range quotes {
		i, ok := index[q.CycleID]
		if !ok {
			i = len(readings)
			index[q.CycleID] = i
			readings = append(readings, Reading{
				CycleID: q.CycleID,
				At:      q.ObservedAt,
				Prices:  make(map[string]decimal.Decimal),
			})
		}
		r := &readings[i]
		if q.ObservedAt.Before(r.At) {
			r.At = q.ObservedAt
		}
		r.Prices[q.Symbol] = q.Price
	}
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].At.Before(readings[j].At)
	})
	return readings
}

// tail returns the last n readings.
func tail(readings []Reading, n int) []Reading {
	if n >= 0 && len(readings) > n {
		return readings[len(readings)-n:]
	}
	return readings
}
