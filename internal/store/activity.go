package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepo reads the ticker query log written by the request-serving
// side of the system.
type ActivityRepo struct {
	db *pgxpool.Pool
}

// NewActivityRepo creates an ActivityRepo over the given pool.
func NewActivityRepo(db *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// RecentSymbols returns the distinct symbols most recently queried by
// users, newest first, capped at limit.
func (r *ActivityRepo) RecentSymbols(ctx context.Context, limit int) ([]string, error) {
	const query = `
		SELECT symbol
		FROM query_log
		GROUP BY symbol
		ORDER BY MAX(queried_at) DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log: %w", err)
	}
	return symbols, nil
}
