package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/model"
)

// TickHandler receives one parsed inbound tick.
type TickHandler func(model.RawTick)

// Dialer creates an unconnected Client. Tests substitute fakes.
type Dialer func(cfg ClientConfig, logger *slog.Logger) Client

// Connector owns the single upstream streaming connection. It tracks the
// desired symbol set, keeps the wire subscriptions in sync with it, and
// reconnects with a fixed delay when the connection drops unexpectedly.
type Connector struct {
	cfg    Config
	logger *slog.Logger
	dial   Dialer

	mu       sync.Mutex
	state    State
	client   Client
	desired  map[string]struct{} // symbols the coordinator wants live
	wire     map[string]struct{} // symbols subscribed on the wire
	attempts int
	gen      int             // bumped by Connect/Disconnect to invalidate stale goroutines
	ctx      context.Context // from the last explicit Connect; governs redials

	handlerMu sync.RWMutex
	handler   TickHandler
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithDialer replaces the WebSocket client factory.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dial = d
	}
}

// NewConnector creates a new Connector.
func NewConnector(cfg Config, logger *slog.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connector{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		dial:   NewClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// OnTick registers the handler invoked once per parsed inbound tick.
// Registration is last-wins: a second call replaces (and drops) the
// previously registered handler.
func (c *Connector) OnTick(fn TickHandler) {
	c.handlerMu.Lock()
	c.handler = fn
	c.handlerMu.Unlock()
}

// State returns the current connection state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the upstream connection is established.
func (c *Connector) IsConnected() bool {
	return c.State() == StateConnected
}

// WireSymbols returns the symbols currently subscribed on the wire.
func (c *Connector) WireSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return setToSlice(c.wire)
}

// Connect establishes the upstream connection and subscribes the given
// symbols. Idempotent: when already connected it behaves like
// UpdateSubscriptions. An explicit call resets the reconnect attempt
// counter, including from StateFailed.
func (c *Connector) Connect(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	c.desired = toSet(symbols)

	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		c.UpdateSubscriptions(symbols)
		return nil
	case StateConnecting:
		// Intent recorded; the in-flight attempt picks up the new desired set.
		c.mu.Unlock()
		return nil
	}

	c.state = StateConnecting
	c.attempts = 0
	c.ctx = ctx
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.tryConnect(ctx, gen); err != nil {
		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()

		c.logger.Warn("upstream connect failed, scheduling retries", "error", err)
		go c.retryLoop(ctx, gen)
		return fmt.Errorf("connect upstream: %w", err)
	}

	return nil
}

// UpdateSubscriptions reconciles the wire subscriptions against the given
// desired set, sending a subscribe for additions and an unsubscribe for
// removals. No wire traffic happens while not connected; the desired set is
// still recorded for the next (re)connect.
func (c *Connector) UpdateSubscriptions(symbols []string) {
	set := toSet(symbols)

	c.mu.Lock()
	c.desired = set

	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	adds := setDiff(set, c.wire)
	removes := setDiff(c.wire, set)
	cl := c.client
	c.wire = set
	c.mu.Unlock()

	if len(adds) == 0 && len(removes) == 0 {
		return
	}

	if len(adds) > 0 {
		if err := c.sendCommand(cl, "subscribe", adds); err != nil {
			c.logger.Warn("subscribe command failed", "symbols", adds, "error", err)
		}
	}
	if len(removes) > 0 {
		if err := c.sendCommand(cl, "unsubscribe", removes); err != nil {
			c.logger.Warn("unsubscribe command failed", "symbols", removes, "error", err)
		}
	}
}

// Disconnect closes the transport and clears all wire-subscription state.
// Idempotent. Any pending reconnect loop is cancelled.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.state = StateDisconnected
	c.wire = nil
	c.desired = nil
	c.attempts = 0
	c.gen++
	c.mu.Unlock()

	if cl != nil {
		cl.Close()
	}

	c.logger.Info("upstream disconnected")
}

// tryConnect performs a single dial + handshake + resubscribe attempt.
func (c *Connector) tryConnect(ctx context.Context, gen int) error {
	cl := c.dial(c.cfg.clientConfig(), c.logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect or a newer Connect superseded this attempt.
		c.mu.Unlock()
		cl.Close()
		return nil
	}
	c.client = cl
	c.state = StateConnected
	c.attempts = 0
	symbols := setToSlice(c.desired)
	c.wire = toSet(symbols)
	c.mu.Unlock()

	if len(symbols) > 0 {
		if err := c.sendCommand(cl, "subscribe", symbols); err != nil {
			c.logger.Warn("initial subscribe failed", "symbols", symbols, "error", err)
		}
	}

	go c.watch(cl, gen)

	c.logger.Info("upstream connected", "symbols", len(symbols))
	return nil
}

// retryLoop reattempts the connection with a fixed delay until it succeeds,
// the attempt ceiling is reached, or the connector is superseded.
func (c *Connector) retryLoop(ctx context.Context, gen int) {
	for {
		c.mu.Lock()
		if gen != c.gen || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			c.state = StateFailed
			attempts := c.attempts
			c.mu.Unlock()
			c.logger.Error("upstream reconnect attempts exhausted",
				"attempts", attempts,
				"error", ErrRetriesExhausted,
			)
			return
		}
		attempt := c.attempts + 1
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.logger.Info("reconnecting upstream", "attempt", attempt)

		if err := c.tryConnect(ctx, gen); err != nil {
			c.mu.Lock()
			c.attempts++
			c.mu.Unlock()
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		return
	}
}

// watch consumes a client's message and error channels until the connection
// ends, routing ticks to the handler and errors to the reconnect path.
func (c *Connector) watch(cl Client, gen int) {
	for {
		select {
		case err, ok := <-cl.Errors():
			if !ok {
				return
			}
			c.handleConnectionError(gen, err)
			return

		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			c.handleMessage(msg)
		}
	}
}

// handleConnectionError transitions to StateConnecting and starts the retry
// loop, unless an explicit Disconnect or a newer Connect already took over.
func (c *Connector) handleConnectionError(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	cl := c.client
	c.client = nil
	c.state = StateConnecting
	c.wire = nil
	ctx := c.ctx
	c.mu.Unlock()

	if cl != nil {
		cl.Close()
	}

	c.logger.Warn("upstream connection lost, reconnecting", "error", err)
	go c.retryLoop(ctx, gen)
}

// handleMessage parses one inbound payload. Anything missing the required
// tick fields is logged and discarded without breaking the connection.
func (c *Connector) handleMessage(msg TimestampedMessage) {
	var wire tickWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		c.logger.Warn("discarding unparseable payload", "error", err, "len", len(msg.Data))
		return
	}

	if wire.Symbol == nil || *wire.Symbol == "" || wire.Ask == nil || wire.Bid == nil {
		// Command acks and other control frames land here too.
		c.logger.Debug("discarding non-tick payload", "len", len(msg.Data))
		return
	}

	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()

	if handler == nil {
		return
	}

	handler(model.RawTick{
		Symbol:    *wire.Symbol,
		Ask:       *wire.Ask,
		Bid:       *wire.Bid,
		Timestamp: wire.Ts,
	})
}

// sendCommand marshals and sends one subscribe/unsubscribe command.
func (c *Connector) sendCommand(cl Client, action string, symbols []string) error {
	data, err := json.Marshal(command{Action: action, Symbols: symbols})
	if err != nil {
		return err
	}
	return cl.Send(data)
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// setDiff returns the elements of a not present in b.
func setDiff(a, b map[string]struct{}) []string {
	var out []string
	for s := range a {
		if _, ok := b[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
