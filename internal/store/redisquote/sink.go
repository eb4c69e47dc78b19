// Package redisquote persists the latest quote per symbol in Redis so it
// can be served before the first live tick arrives and survives restarts
// of this process.
package redisquote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/quotefeed/internal/model"
)

// Sink writes latest quotes into one Redis hash keyed by symbol.
type Sink struct {
	rdb       *redis.Client
	keyLatest string
	ttl       time.Duration
}

// New creates a Sink. Keys are namespaced under prefix; a non-zero ttl
// bounds how long quotes outlive the last write.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Sink {
	if prefix == "" {
		prefix = "quotefeed"
	}
	return &Sink{
		rdb:       rdb,
		keyLatest: prefix + ":latest",
		ttl:       ttl,
	}
}

// StoreQuote upserts the latest quote for its symbol.
func (s *Sink) StoreQuote(ctx context.Context, q model.Quote) error {
	if q.Symbol == "" {
		return nil
	}

	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote %s: %w", q.Symbol, err)
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, s.keyLatest, q.Symbol, string(b))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.keyLatest, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quote %s: %w", q.Symbol, err)
	}
	return nil
}

// LatestQuote reads the stored quote for symbol, or nil when none exists.
func (s *Sink) LatestQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	raw, err := s.rdb.HGet(ctx, s.keyLatest, symbol).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read quote %s: %w", symbol, err)
	}

	var q model.Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", symbol, err)
	}
	return &q, nil
}
