package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/feed"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/quote"
	"github.com/rickgao/quotefeed/internal/session"
	"github.com/rickgao/quotefeed/internal/subscription"
)

// EventMarketData names the event carrying one normalized quote to a
// client sink.
const EventMarketData = "market_data"

// ErrUnknownClient is returned for operations on a client with no
// registered session.
var ErrUnknownClient = errors.New("unknown client")

// Feed is the upstream connection the coordinator drives. Implemented by
// feed.Connector.
type Feed interface {
	Connect(ctx context.Context, symbols []string) error
	UpdateSubscriptions(symbols []string)
	Disconnect()
	IsConnected() bool
	State() feed.State
	OnTick(feed.TickHandler)
}

// Status is a point-in-time snapshot of the whole system.
type Status struct {
	UpstreamConnected bool               `json:"upstream_connected"`
	UpstreamState     string             `json:"upstream_state"`
	ActiveSymbols     []string           `json:"active_symbols"`
	TotalClients      int                `json:"total_clients"`
	Subscriptions     subscription.Stats `json:"subscriptions"`
}

// Coordinator mediates between client sessions and the upstream feed.
type Coordinator interface {
	// Start registers the tick handler and launches the wire-reconcile
	// loop.
	Start(ctx context.Context) error

	// Stop shuts down the reconcile loop and disconnects upstream.
	Stop(ctx context.Context) error

	// RegisterSession adds a session to the registry.
	RegisterSession(s *session.Session)

	// Subscribe adds symbol subscriptions for a registered client and
	// converges the upstream wire state.
	Subscribe(clientID string, symbols []string) error

	// Unsubscribe removes the given symbols for a client, or all of its
	// symbols when symbols is nil.
	Unsubscribe(clientID string, symbols []string) error

	// DisconnectClient removes all of a client's subscriptions, then its
	// session.
	DisconnectClient(clientID string) error

	// SystemStatus reports upstream state and registry statistics.
	SystemStatus() Status

	// CleanupInactiveClients unsubscribes and removes every session idle
	// longer than maxIdle, returning the number removed.
	CleanupInactiveClients(maxIdle time.Duration) int
}

// coordinatorImpl implements the Coordinator interface.
type coordinatorImpl struct {
	feed        Feed
	sessions    session.Registry
	subs        subscription.Registry
	transformer quote.Transformer
	logger      *slog.Logger

	// mu serializes all registry mutations so the subscription
	// invariants hold under concurrent callers.
	mu sync.Mutex

	// kick wakes the reconcile loop; capacity 1 coalesces bursts.
	kick chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator over the given collaborators.
func NewCoordinator(fd Feed, sessions session.Registry, subs subscription.Registry, transformer quote.Transformer, logger *slog.Logger) Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &coordinatorImpl{
		feed:        fd,
		sessions:    sessions,
		subs:        subs,
		transformer: transformer,
		logger:      logger,
		kick:        make(chan struct{}, 1),
	}
}

// Start begins coordinating.
func (c *coordinatorImpl) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.feed.OnTick(c.onUpstreamTick)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reconcileLoop(c.ctx)
	}()

	c.logger.Info("coordinator started")
	return nil
}

// Stop gracefully shuts down.
func (c *coordinatorImpl) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.feed.Disconnect()
	c.logger.Info("coordinator stopped")
	return nil
}

func (c *coordinatorImpl) RegisterSession(s *session.Session) {
	c.sessions.Add(s)
}

func (c *coordinatorImpl) Subscribe(clientID string, symbols []string) error {
	c.mu.Lock()
	if c.sessions.Get(clientID) == nil {
		c.mu.Unlock()
		return ErrUnknownClient
	}
	c.subs.Add(clientID, symbols)
	c.mu.Unlock()

	c.sessions.Touch(clientID)
	c.requestReconcile()

	c.logger.Debug("client subscribed", "client_id", clientID, "symbols", symbols)
	return nil
}

func (c *coordinatorImpl) Unsubscribe(clientID string, symbols []string) error {
	c.mu.Lock()
	if c.sessions.Get(clientID) == nil {
		c.mu.Unlock()
		return ErrUnknownClient
	}
	c.subs.Remove(clientID, symbols)
	c.mu.Unlock()

	c.sessions.Touch(clientID)
	c.requestReconcile()

	c.logger.Debug("client unsubscribed", "client_id", clientID, "symbols", symbols)
	return nil
}

func (c *coordinatorImpl) DisconnectClient(clientID string) error {
	c.mu.Lock()
	if c.sessions.Get(clientID) == nil {
		c.mu.Unlock()
		return ErrUnknownClient
	}
	c.subs.Remove(clientID, nil)
	c.sessions.Remove(clientID)
	c.mu.Unlock()

	c.requestReconcile()

	c.logger.Info("client disconnected", "client_id", clientID)
	return nil
}

func (c *coordinatorImpl) SystemStatus() Status {
	return Status{
		UpstreamConnected: c.feed.IsConnected(),
		UpstreamState:     string(c.feed.State()),
		ActiveSymbols:     c.subs.ActiveSymbols(),
		TotalClients:      c.sessions.CountActive(),
		Subscriptions:     c.subs.Stats(),
	}
}

func (c *coordinatorImpl) CleanupInactiveClients(maxIdle time.Duration) int {
	c.mu.Lock()
	stale := c.sessions.Stale(maxIdle)
	for _, id := range stale {
		c.subs.Remove(id, nil)
		c.sessions.Remove(id)
	}
	c.mu.Unlock()

	if len(stale) > 0 {
		c.requestReconcile()
		c.logger.Info("inactive clients removed", "count", len(stale))
	}
	return len(stale)
}

// requestReconcile wakes the reconcile loop without blocking. A pending
// wakeup already covers this request.
func (c *coordinatorImpl) requestReconcile() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// reconcileLoop converges the upstream wire state with the active symbol
// set. Running all feed calls on this one goroutine keeps snapshot order
// and keeps network I/O out of the registry critical section.
func (c *coordinatorImpl) reconcileLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.reconcileFeed(ctx)
		}
	}
}

func (c *coordinatorImpl) reconcileFeed(ctx context.Context) {
	active := c.subs.ActiveSymbols()

	switch {
	case len(active) == 0:
		if c.feed.IsConnected() {
			c.feed.Disconnect()
		}
	case !c.feed.IsConnected():
		if err := c.feed.Connect(ctx, active); err != nil {
			c.logger.Warn("upstream connect failed", "error", err)
		}
	default:
		c.feed.UpdateSubscriptions(active)
	}
}

// onUpstreamTick fans one tick out to every subscriber. The transformer
// runs once per tick, and each send is isolated so a broken sink cannot
// affect the others. Per-symbol order is preserved by running on the
// feed's single delivery goroutine.
func (c *coordinatorImpl) onUpstreamTick(tick model.RawTick) {
	subscribers := c.subs.SubscribersOf(tick.Symbol)
	if len(subscribers) == 0 {
		c.logger.Debug("tick with no subscribers dropped", "symbol", tick.Symbol)
		return
	}

	q := c.transformer.Normalize(c.ctx, tick)

	for _, id := range subscribers {
		sess := c.sessions.Get(id)
		if sess == nil || sess.Sink == nil {
			c.logger.Warn("subscriber has no deliverable session", "client_id", id, "symbol", tick.Symbol)
			continue
		}
		c.deliver(sess, q)
	}
}

// deliver pushes one quote to one session, containing panics and logging
// errors.
func (c *coordinatorImpl) deliver(sess *session.Session, q model.Quote) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sink panicked", "client_id", sess.ClientID, "panic", r)
		}
	}()

	if err := sess.Sink.Send(EventMarketData, q); err != nil {
		c.logger.Warn("quote delivery failed",
			"client_id", sess.ClientID,
			"symbol", q.Symbol,
			"error", err,
		)
		return
	}

	// A live delivery counts as activity for idle accounting.
	c.sessions.Touch(sess.ClientID)
}
