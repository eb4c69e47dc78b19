package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/quotefeed/internal/feed"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/session"
	"github.com/rickgao/quotefeed/internal/subscription"
)

type fakeFeed struct {
	mu          sync.Mutex
	connected   bool
	connects    [][]string
	updates     [][]string
	disconnects int
	handler     feed.TickHandler
}

func (f *fakeFeed) Connect(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.connects = append(f.connects, sortedCopy(symbols))
	return nil
}

func (f *fakeFeed) UpdateSubscriptions(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, sortedCopy(symbols))
}

func (f *fakeFeed) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeFeed) State() feed.State {
	if f.IsConnected() {
		return feed.StateConnected
	}
	return feed.StateDisconnected
}

func (f *fakeFeed) OnTick(h feed.TickHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

type fakeTransformer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTransformer) Normalize(ctx context.Context, tick model.RawTick) model.Quote {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return model.Quote{
		Symbol: tick.Symbol,
		Ask:    tick.Ask,
		Bid:    tick.Bid,
		Price:  (tick.Ask + tick.Bid) / 2,
	}
}

func (f *fakeTransformer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordSink struct {
	mu     sync.Mutex
	events []string
	quotes []model.Quote
	err    error
	panics bool
}

func (s *recordSink) Send(event string, payload any) error {
	if s.panics {
		panic("broken sink")
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if q, ok := payload.(model.Quote); ok {
		s.quotes = append(s.quotes, q)
	}
	return nil
}

func (s *recordSink) received() []model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Quote(nil), s.quotes...)
}

type testEnv struct {
	coord    *coordinatorImpl
	feed     *fakeFeed
	sessions session.Registry
	trans    *fakeTransformer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fd := &fakeFeed{}
	sessions := session.NewRegistry(nil)
	subs := subscription.NewRegistry(nil)
	trans := &fakeTransformer{}

	coord := NewCoordinator(fd, sessions, subs, trans, nil).(*coordinatorImpl)
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		coord.Stop(ctx)
	})

	return &testEnv{coord: coord, feed: fd, sessions: sessions, trans: trans}
}

func (e *testEnv) addClient(id string, sink session.Sink) {
	e.coord.RegisterSession(&session.Session{
		ClientID:    id,
		Sink:        sink,
		ConnectedAt: time.Now(),
	})
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCoordinator_SubscribeUnknownClient(t *testing.T) {
	e := newTestEnv(t)

	if err := e.coord.Subscribe("ghost", []string{"AAPL"}); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("Subscribe(ghost) err = %v, want ErrUnknownClient", err)
	}

	time.Sleep(20 * time.Millisecond)
	e.feed.mu.Lock()
	defer e.feed.mu.Unlock()
	if len(e.feed.connects) != 0 {
		t.Errorf("connects = %v, want none for a rejected subscribe", e.feed.connects)
	}
}

func TestCoordinator_FirstSubscribeConnects(t *testing.T) {
	e := newTestEnv(t)
	e.addClient("c1", &recordSink{})

	if err := e.coord.Subscribe("c1", []string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitFor(t, e.feed.IsConnected, "feed never connected")

	e.feed.mu.Lock()
	defer e.feed.mu.Unlock()
	if len(e.feed.connects) != 1 {
		t.Fatalf("connects = %v, want exactly one", e.feed.connects)
	}
	got := e.feed.connects[0]
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("Connect symbols = %v, want [AAPL MSFT]", got)
	}
}

func TestCoordinator_SubscribeWhileConnectedUpdates(t *testing.T) {
	e := newTestEnv(t)
	e.addClient("c1", &recordSink{})
	e.addClient("c2", &recordSink{})

	e.coord.Subscribe("c1", []string{"AAPL"})
	waitFor(t, e.feed.IsConnected, "feed never connected")

	e.coord.Subscribe("c2", []string{"MSFT"})
	waitFor(t, func() bool {
		e.feed.mu.Lock()
		defer e.feed.mu.Unlock()
		return len(e.feed.updates) > 0
	}, "feed never saw an update")

	e.feed.mu.Lock()
	defer e.feed.mu.Unlock()
	last := e.feed.updates[len(e.feed.updates)-1]
	if len(last) != 2 || last[0] != "AAPL" || last[1] != "MSFT" {
		t.Errorf("update symbols = %v, want [AAPL MSFT]", last)
	}
}

func TestCoordinator_LastUnsubscribeDisconnects(t *testing.T) {
	e := newTestEnv(t)
	e.addClient("c1", &recordSink{})

	e.coord.Subscribe("c1", []string{"AAPL"})
	waitFor(t, e.feed.IsConnected, "feed never connected")

	if err := e.coord.Unsubscribe("c1", nil); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	waitFor(t, func() bool { return !e.feed.IsConnected() }, "feed never disconnected")
}

func TestCoordinator_DisconnectClientRemovesEverything(t *testing.T) {
	e := newTestEnv(t)
	e.addClient("c1", &recordSink{})

	e.coord.Subscribe("c1", []string{"AAPL"})
	waitFor(t, e.feed.IsConnected, "feed never connected")

	if err := e.coord.DisconnectClient("c1"); err != nil {
		t.Fatalf("DisconnectClient failed: %v", err)
	}

	if e.sessions.Get("c1") != nil {
		t.Error("session should be removed")
	}
	waitFor(t, func() bool { return !e.feed.IsConnected() }, "feed never disconnected")

	if err := e.coord.DisconnectClient("c1"); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("second DisconnectClient err = %v, want ErrUnknownClient", err)
	}
}

func TestCoordinator_TickFanOut(t *testing.T) {
	e := newTestEnv(t)

	s1 := &recordSink{}
	s2 := &recordSink{}
	e.addClient("c1", s1)
	e.addClient("c2", s2)
	e.coord.Subscribe("c1", []string{"AAPL"})
	e.coord.Subscribe("c2", []string{"AAPL"})

	e.coord.onUpstreamTick(model.RawTick{Symbol: "AAPL", Ask: 150.10, Bid: 150.00})

	if e.trans.callCount() != 1 {
		t.Errorf("transform calls = %d, want 1 per tick regardless of subscribers", e.trans.callCount())
	}
	for i, s := range []*recordSink{s1, s2} {
		got := s.received()
		if len(got) != 1 {
			t.Fatalf("sink %d received %d quotes, want 1", i+1, len(got))
		}
		if got[0].Symbol != "AAPL" || got[0].Price != 150.05 {
			t.Errorf("sink %d quote = %+v", i+1, got[0])
		}
	}
	if s1.events[0] != EventMarketData {
		t.Errorf("event = %q, want %q", s1.events[0], EventMarketData)
	}
}

func TestCoordinator_TickWithoutSubscribersDropped(t *testing.T) {
	e := newTestEnv(t)

	e.coord.onUpstreamTick(model.RawTick{Symbol: "AAPL", Ask: 1, Bid: 1})

	if e.trans.callCount() != 0 {
		t.Errorf("transform calls = %d, want 0 for an unsubscribed symbol", e.trans.callCount())
	}
}

func TestCoordinator_BrokenSinkDoesNotAffectOthers(t *testing.T) {
	e := newTestEnv(t)

	bad := &recordSink{err: errors.New("send failed")}
	worse := &recordSink{panics: true}
	good := &recordSink{}
	e.addClient("c1", bad)
	e.addClient("c2", worse)
	e.addClient("c3", good)
	for _, id := range []string{"c1", "c2", "c3"} {
		e.coord.Subscribe(id, []string{"AAPL"})
	}

	e.coord.onUpstreamTick(model.RawTick{Symbol: "AAPL", Ask: 2, Bid: 2})

	if got := good.received(); len(got) != 1 {
		t.Errorf("healthy sink received %d quotes, want 1", len(got))
	}
}

func TestCoordinator_PerSymbolOrderPreserved(t *testing.T) {
	e := newTestEnv(t)

	s := &recordSink{}
	e.addClient("c1", s)
	e.coord.Subscribe("c1", []string{"AAPL"})

	for i := 1; i <= 5; i++ {
		e.coord.onUpstreamTick(model.RawTick{Symbol: "AAPL", Ask: float64(i), Bid: float64(i)})
	}

	got := s.received()
	if len(got) != 5 {
		t.Fatalf("received %d quotes, want 5", len(got))
	}
	for i, q := range got {
		if q.Price != float64(i+1) {
			t.Errorf("quote %d price = %v, want %v", i, q.Price, float64(i+1))
		}
	}
}

func TestCoordinator_SystemStatus(t *testing.T) {
	e := newTestEnv(t)
	e.addClient("c1", &recordSink{})
	e.coord.Subscribe("c1", []string{"AAPL", "MSFT"})

	waitFor(t, e.feed.IsConnected, "feed never connected")

	st := e.coord.SystemStatus()
	if !st.UpstreamConnected {
		t.Error("UpstreamConnected = false, want true")
	}
	if st.UpstreamState != string(feed.StateConnected) {
		t.Errorf("UpstreamState = %q, want %q", st.UpstreamState, feed.StateConnected)
	}
	if st.TotalClients != 1 {
		t.Errorf("TotalClients = %d, want 1", st.TotalClients)
	}
	if len(st.ActiveSymbols) != 2 {
		t.Errorf("ActiveSymbols = %v, want 2 symbols", st.ActiveSymbols)
	}
	if st.Subscriptions.PerClient["c1"] != 2 {
		t.Errorf("PerClient = %v", st.Subscriptions.PerClient)
	}
}

func TestCoordinator_CleanupInactiveClients(t *testing.T) {
	e := newTestEnv(t)

	e.coord.RegisterSession(&session.Session{
		ClientID:    "stale",
		Sink:        &recordSink{},
		ConnectedAt: time.Now().Add(-time.Hour),
	})
	e.addClient("fresh", &recordSink{})

	// Seed subscriptions directly so the stale session is never touched.
	e.coord.subs.Add("stale", []string{"AAPL"})
	e.coord.requestReconcile()
	waitFor(t, e.feed.IsConnected, "feed never connected")

	removed := e.coord.CleanupInactiveClients(30 * time.Minute)
	if removed != 1 {
		t.Fatalf("CleanupInactiveClients = %d, want 1", removed)
	}
	if e.sessions.Get("stale") != nil {
		t.Error("stale session should be removed")
	}
	if e.sessions.Get("fresh") == nil {
		t.Error("fresh session should survive")
	}

	// The stale client held the only subscription, so upstream drops.
	waitFor(t, func() bool { return !e.feed.IsConnected() }, "feed never disconnected")
}
