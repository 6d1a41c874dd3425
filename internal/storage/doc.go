// Package storage persists the cycle journal and alert dedup state.
//
// Two drivers exist: "file" (JSON Lines, no dependencies) and "sqlite"
// (modernc.org/sqlite, pure Go). Driver "none" or empty disables storage.
package storage
