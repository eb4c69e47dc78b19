package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/quotefeed/internal/model"
)

// QuoteSink persists the latest quote per symbol.
type QuoteSink interface {
	StoreQuote(ctx context.Context, q model.Quote) error
}

const sinkWriteTimeout = 5 * time.Second

// syntheticSink adapts the monitor's quote storage to the session Sink
// interface, so monitored symbols flow through the same fan-out path as
// real clients.
type syntheticSink struct {
	store  QuoteSink
	logger *slog.Logger
}

func (s *syntheticSink) Send(event string, payload any) error {
	q, ok := payload.(model.Quote)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	if err := s.store.StoreQuote(ctx, q); err != nil {
		s.logger.Warn("storing monitored quote failed", "symbol", q.Symbol, "error", err)
		return err
	}
	return nil
}
