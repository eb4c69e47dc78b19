package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/quotefeed/internal/model"
)

// TickerRepo reads ticker metadata.
type TickerRepo struct {
	db *pgxpool.Pool
}

// NewTickerRepo creates a TickerRepo over the given pool.
func NewTickerRepo(db *pgxpool.Pool) *TickerRepo {
	return &TickerRepo{db: db}
}

// Ticker returns the metadata for code, or nil if the ticker is unknown.
func (r *TickerRepo) Ticker(ctx context.Context, code string) (*model.Ticker, error) {
	const query = `
		SELECT code, name, type, exchange, currency, enabled
		FROM tickers
		WHERE code = $1`

	var t model.Ticker
	err := r.db.QueryRow(ctx, query, code).Scan(
		&t.Code, &t.Name, &t.Type, &t.Exchange, &t.Currency, &t.Enabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ticker %s: %w", code, err)
	}
	return &t, nil
}
