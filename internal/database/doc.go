// Package database provides connection pool management for PostgreSQL.
//
// The relational store holds ticker metadata, split history, historical
// candles, and the query-activity log consumed by the activity monitor.
package database
