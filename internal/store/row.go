// Package store holds the knowledge-base clients. The pipeline only ever
// reads; the write paths exist for the loading tools and are not reachable
// from the audit executor.
package store

// Row is one backend result row, column name to scalar value. An alias so
// callers can consume rows without importing this package.
type Row = map[string]any
