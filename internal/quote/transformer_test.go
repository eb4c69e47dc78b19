package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/quotefeed/internal/model"
)

type fakeTickers struct {
	tickers map[string]*model.Ticker
	err     error
	calls   int
}

func (f *fakeTickers) Ticker(ctx context.Context, code string) (*model.Ticker, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tickers[code], nil
}

type fakeSplits struct {
	splits map[string][]model.Split
	err    error
}

func (f *fakeSplits) Splits(ctx context.Context, code string) ([]model.Split, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.splits[code], nil
}

type fakeCandles struct {
	candles map[string]*model.Candle
	err     error
	calls   int
}

func (f *fakeCandles) LatestCandle(ctx context.Context, symbol string) (*model.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[symbol], nil
}

func testSources() (*fakeTickers, *fakeSplits, *fakeCandles) {
	tickers := &fakeTickers{tickers: map[string]*model.Ticker{
		"AAPL":    {Code: "AAPL", Type: model.AssetStock, Enabled: true},
		"BTC-USD": {Code: "BTC-USD", Type: model.AssetCrypto, Enabled: true},
		"EURUSD":  {Code: "EURUSD", Type: model.AssetForex, Enabled: true},
	}}
	splits := &fakeSplits{splits: map[string][]model.Split{}}
	candles := &fakeCandles{candles: map[string]*model.Candle{}}
	return tickers, splits, candles
}

func TestNormalize_StockWithReference(t *testing.T) {
	tickers, splits, candles := testSources()
	candles.candles["AAPL"] = &model.Candle{
		Symbol: "AAPL", Open: 147.5, High: 149.0, Low: 147.0, Close: 148.0,
	}
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "AAPL", Ask: 150.10, Bid: 150.00, Timestamp: 1712000000000,
	})

	if q.Price != 150.05 {
		t.Errorf("Price = %v, want 150.05", q.Price)
	}
	if q.Change != 2.05 {
		t.Errorf("Change = %v, want 2.05", q.Change)
	}
	if q.ChangePercent != 1.39 {
		t.Errorf("ChangePercent = %v, want 1.39", q.ChangePercent)
	}
	if q.Close != 148.0 || q.Open != 147.5 {
		t.Errorf("reference OHLC not carried: %+v", q)
	}
	if q.Timestamp != 1712000000000 {
		t.Errorf("Timestamp = %d, want 1712000000000", q.Timestamp)
	}
	if q.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set")
	}
}

func TestNormalize_CryptoScaling(t *testing.T) {
	tickers, splits, candles := testSources()
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "BTC-USD", Ask: 65123456, Bid: 65123450,
	})

	if q.Ask != 65123.456 {
		t.Errorf("Ask = %v, want 65123.456", q.Ask)
	}
	if q.Bid != 65123.45 {
		t.Errorf("Bid = %v, want 65123.45", q.Bid)
	}
	if q.Price != 65123.453 {
		t.Errorf("Price = %v, want 65123.453", q.Price)
	}
	// No stored candle: change fields stay zero.
	if q.Change != 0 || q.ChangePercent != 0 {
		t.Errorf("Change = %v, ChangePercent = %v, want 0, 0", q.Change, q.ChangePercent)
	}
	if q.Close != 0 {
		t.Errorf("Close = %v, want 0 without a reference candle", q.Close)
	}
}

func TestNormalize_SplitAdjustment(t *testing.T) {
	tickers, splits, candles := testSources()
	splits.splits["AAPL"] = []model.Split{
		{Code: "AAPL", EffectiveDate: time.Now().Add(-24 * time.Hour), Ratio: 0.25},
		{Code: "AAPL", EffectiveDate: time.Now().Add(24 * time.Hour), Ratio: 0.5}, // future, excluded
	}
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "AAPL", Ask: 100, Bid: 100,
	})

	if q.Price != 25 {
		t.Errorf("Price = %v, want 25 after 4:1 split adjustment", q.Price)
	}
}

func TestNormalize_ForexIgnoresSplits(t *testing.T) {
	tickers, splits, candles := testSources()
	splits.splits["EURUSD"] = []model.Split{
		{Code: "EURUSD", EffectiveDate: time.Now().Add(-24 * time.Hour), Ratio: 0.5},
	}
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "EURUSD", Ask: 1.08125, Bid: 1.08115,
	})

	if q.Price != 1.0812 {
		t.Errorf("Price = %v, want 1.0812 (no split adjustment for forex)", q.Price)
	}
}

func TestNormalize_UnknownSymbolDefaultsToStock(t *testing.T) {
	tickers, splits, candles := testSources()
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "UNKNOWN", Ask: 10.005, Bid: 10.001,
	})

	// Stock profile: 2 decimals, no scaling.
	if q.Price != 10 {
		t.Errorf("Price = %v, want 10", q.Price)
	}
}

func TestNormalize_MetadataFailurePassesThrough(t *testing.T) {
	tickers, splits, candles := testSources()
	tickers.err = errors.New("db down")
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "AAPL", Ask: 150.10, Bid: 150.00, Timestamp: 99,
	})

	if q.Ask != 150.10 || q.Bid != 150.00 {
		t.Errorf("degraded quote should keep raw prices, got %+v", q)
	}
	if q.Price != 150.05 {
		t.Errorf("Price = %v, want raw mid 150.05", q.Price)
	}
	if q.Change != 0 || q.ChangePercent != 0 {
		t.Errorf("degraded quote should zero change fields, got %+v", q)
	}
	if q.Timestamp != 99 {
		t.Errorf("Timestamp = %d, want 99", q.Timestamp)
	}
}

func TestNormalize_ReferenceFailurePassesThrough(t *testing.T) {
	tickers, splits, candles := testSources()
	candles.err = errors.New("query timeout")
	tr := NewTransformer(tickers, splits, candles, nil)

	q := tr.Normalize(context.Background(), model.RawTick{
		Symbol: "AAPL", Ask: 150.10, Bid: 150.00,
	})

	if q.Price != 150.05 || q.Change != 0 {
		t.Errorf("degraded quote = %+v, want raw mid with zero change", q)
	}
}

func TestNormalize_ReferenceCached(t *testing.T) {
	tickers, splits, candles := testSources()
	candles.candles["AAPL"] = &model.Candle{Symbol: "AAPL", Close: 148.0}
	tr := NewTransformer(tickers, splits, candles, nil)

	tick := model.RawTick{Symbol: "AAPL", Ask: 150.10, Bid: 150.00}
	for i := 0; i < 5; i++ {
		tr.Normalize(context.Background(), tick)
	}

	if candles.calls != 1 {
		t.Errorf("candle lookups = %d, want 1 (cached)", candles.calls)
	}
	if tickers.calls != 1 {
		t.Errorf("ticker lookups = %d, want 1 (cached)", tickers.calls)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	tickers, splits, candles := testSources()
	candles.candles["AAPL"] = &model.Candle{Symbol: "AAPL", Close: 148.0}
	tr := NewTransformer(tickers, splits, candles, nil)

	tick := model.RawTick{Symbol: "AAPL", Ask: 150.10, Bid: 150.00, Timestamp: 1}
	a := tr.Normalize(context.Background(), tick)
	b := tr.Normalize(context.Background(), tick)

	a.ReceivedAt, b.ReceivedAt = time.Time{}, time.Time{}
	if a != b {
		t.Errorf("Normalize not stable for identical ticks: %+v vs %+v", a, b)
	}
}
