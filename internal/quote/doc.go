// Package quote turns raw upstream ticks into normalized quotes.
//
// Normalization scales prices per asset class, applies historical split
// adjustment for equities, computes change against a cached reference
// candle, and rounds to the class's decimal precision. The transformer
// never fails: when any lookup breaks it falls back to the raw mid-price
// with zeroed change fields and logs the cause.
package quote
