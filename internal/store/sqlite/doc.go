// Package sqlite is the durable storage backend for group state, key
// packages and external pre-shared keys, built on the pure-Go
// modernc.org/sqlite driver.
//
// The database runs in WAL mode with secure_delete enabled, so deleted key
// package secrets are overwritten on disk. Group writes run in a single
// transaction.
package sqlite
