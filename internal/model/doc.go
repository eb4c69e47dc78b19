// Package model defines the core domain types shared across components:
// ticker metadata, split history, historical candles, raw upstream ticks,
// and normalized quotes.
package model
