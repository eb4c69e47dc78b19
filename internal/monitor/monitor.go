package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/quote"
	"github.com/rickgao/quotefeed/internal/session"
)

// ClientID identifies the monitor's synthetic session.
const ClientID = "SYSTEM_TICKER_MONITOR"

// ActivitySource lists the most recently queried ticker symbols, newest
// first, at most limit distinct entries.
type ActivitySource interface {
	RecentSymbols(ctx context.Context, limit int) ([]string, error)
}

// Hub is the subset of the coordinator the monitor drives.
type Hub interface {
	RegisterSession(s *session.Session)
	Subscribe(clientID string, symbols []string) error
	Unsubscribe(clientID string, symbols []string) error
}

// Monitor keeps feed subscriptions aligned with recent user activity.
type Monitor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Symbols returns the currently monitored symbol set.
	Symbols() []string
}

// monitorImpl implements the Monitor interface.
type monitorImpl struct {
	cfg      config.MonitorConfig
	hub      Hub
	activity ActivitySource
	tickers  quote.TickerSource
	candles  quote.CandleSource
	store    QuoteSink
	logger   *slog.Logger

	allowed map[string]struct{}

	mu      sync.Mutex
	current map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor.
func New(cfg config.MonitorConfig, h Hub, activity ActivitySource, tickers quote.TickerSource, candles quote.CandleSource, store QuoteSink, logger *slog.Logger) Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = struct{}{}
	}

	return &monitorImpl{
		cfg:      cfg,
		hub:      h,
		activity: activity,
		tickers:  tickers,
		candles:  candles,
		store:    store,
		logger:   logger,
		allowed:  allowed,
		current:  make(map[string]struct{}),
	}
}

// Start registers the synthetic session and begins the reconcile loop.
// The first cycle runs immediately.
func (m *monitorImpl) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.hub.RegisterSession(&session.Session{
		ClientID:    ClientID,
		OwnerID:     ClientID,
		Sink:        &syntheticSink{store: m.store, logger: m.logger},
		ConnectedAt: time.Now(),
		Synthetic:   true,
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(m.ctx)
	}()

	m.logger.Info("ticker monitor started",
		"interval", m.cfg.Interval,
		"symbol_limit", m.cfg.SymbolLimit,
	)
	return nil
}

// Stop gracefully shuts down.
func (m *monitorImpl) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("ticker monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *monitorImpl) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.current))
	for sym := range m.current {
		out = append(out, sym)
	}
	return out
}

func (m *monitorImpl) run(ctx context.Context) {
	m.reconcile(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

// reconcile runs one monitoring cycle: read activity, validate, backfill
// newcomers, and adjust subscriptions to the valid set.
func (m *monitorImpl) reconcile(ctx context.Context) {
	recent, err := m.activity.RecentSymbols(ctx, m.cfg.SymbolLimit)
	if err != nil {
		m.logger.Warn("reading activity log failed, keeping current set", "error", err)
		return
	}

	valid := m.validate(ctx, recent)

	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	var toSubscribe, toUnsubscribe []string
	for sym := range valid {
		if _, ok := current[sym]; !ok {
			toSubscribe = append(toSubscribe, sym)
		}
	}
	for sym := range current {
		if _, ok := valid[sym]; !ok {
			toUnsubscribe = append(toUnsubscribe, sym)
		}
	}

	if len(toSubscribe) == 0 && len(toUnsubscribe) == 0 {
		return
	}

	// Backfill before subscribing so a quote exists ahead of the first
	// live tick. A failed backfill is logged, not a reason to skip the
	// symbol.
	m.backfill(ctx, toSubscribe)

	if len(toSubscribe) > 0 {
		if err := m.hub.Subscribe(ClientID, toSubscribe); err != nil {
			m.logger.Error("monitor subscribe failed", "symbols", toSubscribe, "error", err)
			return
		}
	}
	if len(toUnsubscribe) > 0 {
		if err := m.hub.Unsubscribe(ClientID, toUnsubscribe); err != nil {
			m.logger.Error("monitor unsubscribe failed", "symbols", toUnsubscribe, "error", err)
		}
	}

	m.mu.Lock()
	m.current = valid
	m.mu.Unlock()

	m.logger.Info("monitor cycle complete",
		"monitored", len(valid),
		"added", len(toSubscribe),
		"removed", len(toUnsubscribe),
	)
}

// validate filters the recent symbols down to enabled tickers with an
// asset class the feed accepts.
func (m *monitorImpl) validate(ctx context.Context, symbols []string) map[string]struct{} {
	valid := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, seen := valid[sym]; seen {
			continue
		}

		ticker, err := m.tickers.Ticker(ctx, sym)
		if err != nil {
			m.logger.Warn("ticker lookup failed, skipping", "symbol", sym, "error", err)
			continue
		}
		if ticker == nil {
			m.logger.Debug("unknown ticker skipped", "symbol", sym)
			continue
		}
		if !ticker.Enabled {
			m.logger.Debug("disabled ticker skipped", "symbol", sym)
			continue
		}
		if _, ok := m.allowed[ticker.Type]; !ok {
			m.logger.Debug("unsupported asset class skipped", "symbol", sym, "type", ticker.Type)
			continue
		}
		valid[sym] = struct{}{}
	}
	return valid
}

// backfill writes the latest stored candle as a reference quote for each
// symbol. Failures are isolated per symbol.
func (m *monitorImpl) backfill(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.BackfillConcurrency)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			if err := m.backfillOne(gctx, sym); err != nil {
				m.logger.Warn("reference backfill failed", "symbol", sym, "error", err)
			}
			// Always nil: one symbol's failure must not cancel the rest.
			return nil
		})
	}
	g.Wait()
}

func (m *monitorImpl) backfillOne(ctx context.Context, symbol string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.BackfillTimeout)
	defer cancel()

	candle, err := m.candles.LatestCandle(ctx, symbol)
	if err != nil {
		return err
	}
	if candle == nil {
		m.logger.Debug("no stored candle to backfill", "symbol", symbol)
		return nil
	}

	return m.store.StoreQuote(ctx, model.Quote{
		Symbol:     symbol,
		Ask:        candle.Close,
		Bid:        candle.Close,
		Price:      candle.Close,
		Open:       candle.Open,
		High:       candle.High,
		Low:        candle.Low,
		Close:      candle.Close,
		Timestamp:  candle.Timestamp.UnixMilli(),
		ReceivedAt: time.Now(),
	})
}
