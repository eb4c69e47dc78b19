// Package monitor keeps the upstream feed subscribed to the tickers users
// are actually looking at.
//
// It runs as one synthetic client that periodically reads the most
// recently queried symbols from the activity log, validates them against
// ticker metadata, backfills a reference quote for newcomers, and adjusts
// its subscriptions through the coordinator like any real client would.
package monitor
