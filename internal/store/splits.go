package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/quotefeed/internal/model"
)

// SplitRepo reads historical stock splits.
type SplitRepo struct {
	db *pgxpool.Pool
}

// NewSplitRepo creates a SplitRepo over the given pool.
func NewSplitRepo(db *pgxpool.Pool) *SplitRepo {
	return &SplitRepo{db: db}
}

// Splits returns every recorded split for code, oldest first. An unknown
// ticker yields an empty slice.
func (r *SplitRepo) Splits(ctx context.Context, code string) ([]model.Split, error) {
	const query = `
		SELECT code, effective_date, ratio
		FROM splits
		WHERE code = $1
		ORDER BY effective_date`

	rows, err := r.db.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query splits for %s: %w", code, err)
	}
	defer rows.Close()

	var splits []model.Split
	for rows.Next() {
		var s model.Split
		if err := rows.Scan(&s.Code, &s.EffectiveDate, &s.Ratio); err != nil {
			return nil, fmt.Errorf("scan split row: %w", err)
		}
		splits = append(splits, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate splits for %s: %w", code, err)
	}
	return splits, nil
}
