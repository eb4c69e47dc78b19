package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/quotefeed/internal/model"
)

// CandleRepo reads stored OHLC candles.
type CandleRepo struct {
	db *pgxpool.Pool
}

// NewCandleRepo creates a CandleRepo over the given pool.
func NewCandleRepo(db *pgxpool.Pool) *CandleRepo {
	return &CandleRepo{db: db}
}

// RecentCandles returns the candles stored for symbol within the last
// days days, oldest first.
func (r *CandleRepo) RecentCandles(ctx context.Context, symbol string, days int) ([]model.Candle, error) {
	const query = `
		SELECT symbol, open, high, low, close, volume, ts
		FROM candles
		WHERE symbol = $1
		  AND ts >= now() - ($2 * interval '1 day')
		ORDER BY ts`

	rows, err := r.db.Query(ctx, query, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("query recent candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles for %s: %w", symbol, err)
	}
	return candles, nil
}

// LatestCandle returns the most recent candle for symbol, or nil when
// nothing is stored yet.
func (r *CandleRepo) LatestCandle(ctx context.Context, symbol string) (*model.Candle, error) {
	const query = `
		SELECT symbol, open, high, low, close, volume, ts
		FROM candles
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT 1`

	var c model.Candle
	err := r.db.QueryRow(ctx, query, symbol).Scan(
		&c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest candle for %s: %w", symbol, err)
	}
	return &c, nil
}
