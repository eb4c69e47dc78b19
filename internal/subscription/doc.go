// Package subscription maintains the bidirectional index between
// subscribed symbols and client IDs.
//
// The registry enforces one invariant after every operation: a symbol is
// tracked if and only if it has at least one subscriber, and the
// per-symbol subscriber sets and per-client symbol sets always mirror
// each other.
package subscription
