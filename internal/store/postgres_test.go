package store

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"stockwatch/models"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	cycleA = uuid.MustParse("0b7f7a4e-3f0e-4d65-9a57-2a0f5f6f1a01")
	cycleB = uuid.MustParse("0b7f7a4e-3f0e-4d65-9a57-2a0f5f6f1a02")
)

func quote(sym, price string, at time.Time, cycle uuid.UUID) models.Quote {
	return models.Quote{
		Symbol:     sym,
		Price:      decimal.RequireFromString(price),
		ObservedAt: at,
		CycleID:    cycle,
		Source:     "http",
	}
}

func TestSaveQuotes_UpsertsInOneTransaction(t *testing.T) {
	db := &fakeDB{}
	s := New(&fakePool{db: db})

	err := s.SaveQuotes(context.Background(), []models.Quote{
		quote("INFY", "1520.35", t0, cycleA),
		quote("TCS", "3901.1", t0, cycleA),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, db.begun)
	assert.Equal(t, 1, db.committed)
	assert.Equal(t, 0, db.rolledBack)
	require.Len(t, db.execs, 2)
	assert.Equal(t, upsertQuote, db.execs[0].sql)
	assert.Equal(t,
		[]interface{}{"INFY", t0, "1520.35", cycleA.String(), "http"},
		db.execs[0].args,
	)
	assert.Equal(t, "TCS", db.execs[1].args[0])
}

func TestSaveQuotes_Empty(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(&fakePool{db: db}).SaveQuotes(context.Background(), nil))
	assert.Equal(t, 0, db.begun)
}

func TestSaveQuotes_RejectsInvalidBeforeWriting(t *testing.T) {
	db := &fakeDB{}
	err := New(&fakePool{db: db}).SaveQuotes(context.Background(), []models.Quote{
		quote("INFY", "1", t0, cycleA),
		quote("TCS", "-2", t0, cycleA),
	})
	require.ErrorIs(t, err, models.ErrNegativePrice)
	assert.Equal(t, 0, db.begun)
	assert.Empty(t, db.execs)
}

func TestSaveQuotes_ConstraintViolationRollsBack(t *testing.T) {
	db := &fakeDB{execErr: map[int]error{
		1: &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "stock_price_price_check"},
	}}
	err := New(&fakePool{db: db}).SaveQuotes(context.Background(), []models.Quote{
		quote("INFY", "1", t0, cycleA),
		quote("TCS", "2", t0, cycleA),
	})
	require.ErrorIs(t, err, ErrConstraint)
	assert.Contains(t, err.Error(), "upsert TCS")
	assert.Equal(t, 0, db.committed)
	assert.Equal(t, 1, db.rolledBack)
}

func TestSaveQuotes_Unavailable(t *testing.T) {
	db := &fakeDB{beginErr: &pgconn.PgError{Code: pgerrcode.AdminShutdown}}
	err := New(&fakePool{db: db}).SaveQuotes(context.Background(), []models.Quote{quote("INFY", "1", t0, cycleA)})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHistory(t *testing.T) {
	db := &fakeDB{rows: map[string][][]interface{}{
		"WHERE symbol = $1": {
			{"INFY", "1520.350000", t0, cycleA.String(), "http"},
			{"INFY", "1521.000000", t0.Add(2 * time.Second), cycleB.String(), "browser"},
		},
	}}
	s := New(&fakePool{db: db})

	got, err := s.History(context.Background(), "INFY", 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1520.35", got[0].Price.String())
	assert.Equal(t, cycleA, got[0].CycleID)
	assert.Equal(t, t0.Add(2*time.Second), got[1].ObservedAt)
	assert.Equal(t, "browser", got[1].Source)
	assert.Equal(t, []interface{}{"INFY", 20}, db.queries[0].args)

	_, err = s.History(context.Background(), "INFY", 0)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"INFY", nil}, db.queries[1].args)
}

func TestLatest_BadRow(t *testing.T) {
	db := &fakeDB{rows: map[string][][]interface{}{
		"DISTINCT ON": {{"INFY", "NaN?", t0, cycleA.String(), "http"}},
	}}
	_, err := New(&fakePool{db: db}).Latest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price of INFY")
}

func TestRecentReadings(t *testing.T) {
	db := &fakeDB{rows: map[string][][]interface{}{
		"WITH recent": {
			{"INFY", "1", t0, cycleA.String(), "http"},
			{"TCS", "2", t0, cycleA.String(), "http"},
		},
	}}
	s := New(&fakePool{db: db})

	got, err := s.RecentReadings(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []interface{}{5}, db.queries[0].args)

	got, err = s.RecentReadings(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, db.queries, 1)
}

func TestSymbols(t *testing.T) {
	db := &fakeDB{rows: map[string][][]interface{}{
		"SELECT DISTINCT symbol": {{"INFY"}, {"TCS"}},
	}}
	got, err := New(&fakePool{db: db}).Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY", "TCS"}, got)
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(&fakePool{db: db}).Migrate(context.Background()))
	require.Len(t, db.execs, len(schema))
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS stock_price")
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	err := classify("op", &net.OpError{Op: "dial", Err: errors.New("connection refused")})
	assert.ErrorIs(t, err, ErrUnavailable)

	err = classify("op", &pgconn.PgError{Code: pgerrcode.TooManyConnections})
	assert.ErrorIs(t, err, ErrUnavailable)

	err = classify("op", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	assert.ErrorIs(t, err, ErrConstraint)

	err = classify("op", &pgconn.PgError{Code: pgerrcode.UndefinedTable})
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrConstraint)

	err = classify("op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnavailable)
}
