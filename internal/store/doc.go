// Package store holds the storage backends that do not need a database.
//
// MemoryStore implements the three group storage contracts in process
// memory: GroupStateStorage directly, KeyPackageStorage through
// KeyPackages() and PreSharedKeyStorage through PSKs(). All three views
// share one mutex. Secrets are zeroed when entries are replaced or deleted.
//
// IdentityFileStore keeps the local signing identity on disk, sealed with
// ChaCha20-Poly1305 under an scrypt-derived key. Files are replaced through
// a temp file and rename.
//
// Pre-shared keys are stored under types.EncodePSKID. The SQLite backend
// lives in the sqlite subpackage.
package store
