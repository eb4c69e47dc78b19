package quote

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/quotefeed/internal/model"
)

const (
	// referenceTTL bounds how long a cached reference candle is used
	// before re-querying storage.
	referenceTTL = 5 * time.Minute

	// metadataTTL bounds ticker-metadata and split-factor staleness.
	metadataTTL = 10 * time.Minute

	changePercentDecimals = 2
)

// TickerSource resolves ticker metadata. A nil Ticker with a nil error
// means the symbol is unknown.
type TickerSource interface {
	Ticker(ctx context.Context, code string) (*model.Ticker, error)
}

// SplitSource lists the historical splits recorded for an equity.
type SplitSource interface {
	Splits(ctx context.Context, code string) ([]model.Split, error)
}

// CandleSource fetches the latest stored candle for a symbol. A nil
// Candle with a nil error means nothing is stored yet.
type CandleSource interface {
	LatestCandle(ctx context.Context, symbol string) (*model.Candle, error)
}

// Transformer normalizes raw upstream ticks.
type Transformer interface {
	// Normalize scales, split-adjusts, and rounds one tick, computing
	// change against the cached reference candle. It never fails.
	Normalize(ctx context.Context, tick model.RawTick) model.Quote
}

// transformerImpl implements the Transformer interface.
type transformerImpl struct {
	tickers TickerSource
	splits  SplitSource
	candles CandleSource
	logger  *slog.Logger

	assetTypes  *Cache[string, string]
	splitFactor *Cache[string, float64]
	reference   *Cache[string, *model.Candle]
}

// NewTransformer creates a Transformer backed by the given reference-data
// sources.
func NewTransformer(tickers TickerSource, splits SplitSource, candles CandleSource, logger *slog.Logger) Transformer {
	if logger == nil {
		logger = slog.Default()
	}

	return &transformerImpl{
		tickers:     tickers,
		splits:      splits,
		candles:     candles,
		logger:      logger,
		assetTypes:  NewCache[string, string](),
		splitFactor: NewCache[string, float64](),
		reference:   NewCache[string, *model.Candle](),
	}
}

func (t *transformerImpl) Normalize(ctx context.Context, tick model.RawTick) model.Quote {
	assetType, err := t.assetType(ctx, tick.Symbol)
	if err != nil {
		t.logger.Warn("ticker metadata lookup failed, passing tick through",
			"symbol", tick.Symbol, "error", err)
		return passthrough(tick)
	}
	profile := ProfileFor(assetType)

	factor := 1.0
	if profile.SplitAdjusted {
		factor, err = t.cumulativeSplitFactor(ctx, tick.Symbol)
		if err != nil {
			t.logger.Warn("split lookup failed, passing tick through",
				"symbol", tick.Symbol, "error", err)
			return passthrough(tick)
		}
	}

	scale := decimal.NewFromFloat(profile.PriceMultiplier).Mul(decimal.NewFromFloat(factor))
	ask := decimal.NewFromFloat(tick.Ask).Mul(scale)
	bid := decimal.NewFromFloat(tick.Bid).Mul(scale)
	price := ask.Add(bid).Div(decimal.NewFromInt(2))

	ref, err := t.referenceCandle(ctx, tick.Symbol)
	if err != nil {
		t.logger.Warn("reference candle lookup failed, passing tick through",
			"symbol", tick.Symbol, "error", err)
		return passthrough(tick)
	}

	change := decimal.Zero
	changePercent := decimal.Zero
	if ref != nil && ref.Close != 0 {
		refClose := decimal.NewFromFloat(ref.Close)
		change = price.Sub(refClose)
		changePercent = change.Div(refClose).Mul(decimal.NewFromInt(100))
	}

	q := model.Quote{
		Symbol:        tick.Symbol,
		Ask:           roundDecimal(ask, profile.Decimals),
		Bid:           roundDecimal(bid, profile.Decimals),
		Price:         roundDecimal(price, profile.Decimals),
		Change:        roundDecimal(change, profile.Decimals),
		ChangePercent: roundDecimal(changePercent, changePercentDecimals),
		Timestamp:     tick.Timestamp,
		ReceivedAt:    time.Now(),
	}
	if ref != nil {
		q.Open = ref.Open
		q.High = ref.High
		q.Low = ref.Low
		q.Close = ref.Close
	}
	return q
}

// assetType resolves the cached asset class, defaulting to stock for
// unknown symbols.
func (t *transformerImpl) assetType(ctx context.Context, symbol string) (string, error) {
	return t.assetTypes.GetOrRefresh(symbol, metadataTTL, func() (string, error) {
		ticker, err := t.tickers.Ticker(ctx, symbol)
		if err != nil {
			return "", err
		}
		if ticker == nil {
			return model.AssetStock, nil
		}
		return ticker.Type, nil
	})
}

// cumulativeSplitFactor multiplies the ratios of every split already in
// effect. Future-dated splits are excluded.
func (t *transformerImpl) cumulativeSplitFactor(ctx context.Context, symbol string) (float64, error) {
	return t.splitFactor.GetOrRefresh(symbol, metadataTTL, func() (float64, error) {
		splits, err := t.splits.Splits(ctx, symbol)
		if err != nil {
			return 0, err
		}
		now := time.Now()
		factor := decimal.NewFromInt(1)
		for _, s := range splits {
			if s.EffectiveDate.After(now) {
				continue
			}
			factor = factor.Mul(decimal.NewFromFloat(s.Ratio))
		}
		f, _ := factor.Float64()
		return f, nil
	})
}

func (t *transformerImpl) referenceCandle(ctx context.Context, symbol string) (*model.Candle, error) {
	return t.reference.GetOrRefresh(symbol, referenceTTL, func() (*model.Candle, error) {
		return t.candles.LatestCandle(ctx, symbol)
	})
}

// passthrough builds the degraded quote used when reference lookups fail:
// raw prices, raw mid-price, zeroed change.
func passthrough(tick model.RawTick) model.Quote {
	return model.Quote{
		Symbol:     tick.Symbol,
		Ask:        tick.Ask,
		Bid:        tick.Bid,
		Price:      (tick.Ask + tick.Bid) / 2,
		Timestamp:  tick.Timestamp,
		ReceivedAt: time.Now(),
	}
}

func roundDecimal(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}
