package quote

import "github.com/rickgao/quotefeed/internal/model"

// AssetScaleProfile describes how one asset class is scaled and rounded.
type AssetScaleProfile struct {
	// PriceMultiplier is applied to raw ask/bid before anything else.
	PriceMultiplier float64

	// Decimals is the rounding precision for price, ask, bid, and change.
	Decimals int32

	// SplitAdjusted marks classes whose prices are adjusted by
	// historical split ratios.
	SplitAdjusted bool
}

// Upstream crypto prices arrive scaled by 1000.
var profiles = map[string]AssetScaleProfile{
	model.AssetStock:     {PriceMultiplier: 1, Decimals: 2, SplitAdjusted: true},
	model.AssetETF:       {PriceMultiplier: 1, Decimals: 2, SplitAdjusted: true},
	model.AssetIndex:     {PriceMultiplier: 1, Decimals: 2},
	model.AssetCrypto:    {PriceMultiplier: 1.0 / 1000, Decimals: 8},
	model.AssetForex:     {PriceMultiplier: 1, Decimals: 5},
	model.AssetCFD:       {PriceMultiplier: 1, Decimals: 5},
	model.AssetCommodity: {PriceMultiplier: 1, Decimals: 3},
}

// ProfileFor returns the scale profile for an asset class. Unknown classes
// are treated as stocks.
func ProfileFor(assetType string) AssetScaleProfile {
	if p, ok := profiles[assetType]; ok {
		return p
	}
	return profiles[model.AssetStock]
}
