package analytics

import (
	"time"

	"stockwatch/models"

	"github.com/shopspring/decimal"
)

var (
	domainPadding = decimal.RequireFromString("0.02")
	flatPadding   = decimal.NewFromInt(1)
)

type TrendPoint struct {
	Reading    int             `json:"reading"`
	Time       string          `json:"time"`
	ObservedAt time.Time       `json:"observedAt"`
	Price      decimal.Decimal `json:"price"`
}

// Trend is the price history of one symbol, ready to plot.
type Trend struct {
	Symbol     string          `json:"symbol"`
	Points     []TrendPoint    `json:"points"`
	Latest     decimal.Decimal `json:"latest"`
	LatestTime string          `json:"latestTime"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
	// Domain is the y-axis range: [Min, Max] widened by 2% of the spread,
	// or by 1 when all prices are equal.
	Domain [2]decimal.Decimal `json:"domain"`
}

// BuildTrend numbers the readings of history (oldest first) from 1 and
// formats their times in loc.
func BuildTrend(symbol string, history []models.Quote, loc *time.Location) (Trend, error) {
	if len(history) == 0 {
		return Trend{}, ErrNoData
	}

	t := Trend{
		Symbol: symbol,
		Points: make([]TrendPoint, 0, len(history)),
		Min:    history[0].Price,
		Max:    history[0].Price,
	}
	for i, q := range history {
		at := q.ObservedAt.In(loc)
		t.Points = append(t.Points, TrendPoint{
			Reading:    i + 1,
			Time:       at.Format(TimeLayout),
			ObservedAt: at,
			Price:      q.Price,
		})
		t.Min = decimal.Min(t.Min, q.Price)
		t.Max = decimal.Max(t.Max, q.Price)
	}

	last := t.Points[len(t.Points)-1]
	t.Latest = last.Price
	t.LatestTime = last.Time

	pad := flatPadding
	if t.Max.GreaterThan(t.Min) {
		pad = t.Max.Sub(t.Min).Mul(domainPadding)
	}
	t.Domain = [2]decimal.Decimal{t.Min.Sub(pad), t.Max.Add(pad)}
	return t, nil
}
