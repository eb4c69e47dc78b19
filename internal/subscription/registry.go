package subscription

import (
	"log/slog"
	"sync"
)

// Stats summarizes the registry contents.
type Stats struct {
	TotalSymbols     int            `json:"total_symbols"`
	TotalSubscribers int            `json:"total_subscribers"`
	PerSymbol        map[string]int `json:"per_symbol"`
	PerClient        map[string]int `json:"per_client"`
}

// Registry is the shared symbol/client subscription index.
type Registry interface {
	// Add subscribes clientID to each symbol. Duplicate subscriptions
	// are no-ops.
	Add(clientID string, symbols []string)

	// Remove unsubscribes clientID from the given symbols, or from all
	// of its symbols when symbols is nil. Symbols left with no
	// subscribers are dropped entirely.
	Remove(clientID string, symbols []string)

	// SubscribersOf returns the client IDs subscribed to symbol.
	SubscribersOf(symbol string) []string

	// ActiveSymbols returns every symbol with at least one subscriber.
	ActiveSymbols() []string

	// SymbolsOf returns the symbols clientID is subscribed to.
	SymbolsOf(clientID string) []string

	// Stats returns a snapshot of per-symbol and per-client counts.
	Stats() Stats
}

// registryImpl implements the Registry interface. A single mutex guards
// both indexes so they can never diverge.
type registryImpl struct {
	logger *slog.Logger

	mu       sync.RWMutex
	bySymbol map[string]map[string]struct{}
	byClient map[string]map[string]struct{}
}

// NewRegistry creates an empty subscription registry.
func NewRegistry(logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &registryImpl{
		logger:   logger,
		bySymbol: make(map[string]map[string]struct{}),
		byClient: make(map[string]map[string]struct{}),
	}
}

func (r *registryImpl) Add(clientID string, symbols []string) {
	if clientID == "" || len(symbols) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sym := range symbols {
		if sym == "" {
			continue
		}
		if r.bySymbol[sym] == nil {
			r.bySymbol[sym] = make(map[string]struct{})
		}
		r.bySymbol[sym][clientID] = struct{}{}

		if r.byClient[clientID] == nil {
			r.byClient[clientID] = make(map[string]struct{})
		}
		r.byClient[clientID][sym] = struct{}{}
	}
}

func (r *registryImpl) Remove(clientID string, symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := r.byClient[clientID]
	if owned == nil {
		return
	}

	if symbols == nil {
		symbols = make([]string, 0, len(owned))
		for sym := range owned {
			symbols = append(symbols, sym)
		}
	}

	for _, sym := range symbols {
		if _, ok := owned[sym]; !ok {
			continue
		}
		delete(owned, sym)

		subs := r.bySymbol[sym]
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(r.bySymbol, sym)
		}
	}

	if len(owned) == 0 {
		delete(r.byClient, clientID)
	}
}

func (r *registryImpl) SubscribersOf(symbol string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.bySymbol[symbol]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

func (r *registryImpl) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bySymbol))
	for sym := range r.bySymbol {
		out = append(out, sym)
	}
	return out
}

func (r *registryImpl) SymbolsOf(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.byClient[clientID]
	out := make([]string, 0, len(owned))
	for sym := range owned {
		out = append(out, sym)
	}
	return out
}

func (r *registryImpl) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalSymbols:     len(r.bySymbol),
		TotalSubscribers: len(r.byClient),
		PerSymbol:        make(map[string]int, len(r.bySymbol)),
		PerClient:        make(map[string]int, len(r.byClient)),
	}
	for sym, subs := range r.bySymbol {
		stats.PerSymbol[sym] = len(subs)
	}
	for id, owned := range r.byClient {
		stats.PerClient[id] = len(owned)
	}
	return stats
}
