package store

// schema is applied by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_price (
		symbol      text          NOT NULL,
		observed_at timestamptz   NOT NULL,
		price       numeric(20,6) NOT NULL CHECK (price >= 0),
		cycle_id    uuid          NOT NULL,
		source      text          NOT NULL DEFAULT '',
		PRIMARY KEY (symbol, observed_at)
	)`,
	`CREATE INDEX IF NOT EXISTS stock_price_observed_at ON stock_price (observed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS stock_price_cycle_id ON stock_price (cycle_id)`,
}

const upsertQuote = `
INSERT INTO stock_price (symbol, observed_at, price, cycle_id, source)
VALUES ($1, $2, $3::numeric, $4::uuid, $5)
ON CONFLICT (symbol, observed_at) DO UPDATE
SET price = EXCLUDED.price, cycle_id = EXCLUDED.cycle_id, source = EXCLUDED.source`

const selectSymbols = `SELECT DISTINCT symbol FROM stock_price ORDER BY symbol`

const selectHistory = `
SELECT symbol, price::text, observed_at, cycle_id::text, source
FROM (
	SELECT symbol, price, observed_at, cycle_id, source
	FROM stock_price
	WHERE symbol = $1
	ORDER BY observed_at DESC
	LIMIT $2
) h
ORDER BY observed_at`

const selectLatest = `
SELECT DISTINCT ON (symbol) symbol, price::text, observed_at, cycle_id::text, source
FROM stock_price
ORDER BY symbol, observed_at DESC`

const selectRecentReadings = `
WITH recent AS (
	SELECT cycle_id, max(observed_at) AS at
	FROM stock_price
	GROUP BY cycle_id
	ORDER BY at DESC
	LIMIT $1
)
SELECT p.symbol, p.price::text, p.observed_at, p.cycle_id::text, p.source
FROM stock_price p
JOIN recent r ON r.cycle_id = p.cycle_id
ORDER BY p.observed_at, p.symbol`
