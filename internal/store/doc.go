// Package store holds the PostgreSQL repositories for reference data:
// ticker metadata, historical splits, stored candles, and the query
// activity log.
//
// Each repository is a thin reader over one table and implements the
// lookup interface its consumer declares. Absent rows are reported as nil
// results, not errors.
package store
