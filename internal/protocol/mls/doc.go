// Package mls is a compact group key agreement engine that implements the
// GroupEngine contract used by the group session layer.
//
// # Scope
//
// The engine follows the message flow and key schedule of RFC 9420 for
// cipher suite 0x0003 (X25519, ChaCha20-Poly1305, SHA-256, Ed25519), with
// two deliberate reductions:
//
//   - There is no ratchet tree. A committer seals the commit secret directly
//     to the leaf key of every remaining member, and the roster is carried
//     in the ratchet_tree extension as a flat list of leaves.
//   - Handshake messages are always sent as PublicMessage; only application
//     data is encrypted.
//
// It is therefore not interoperable with RFC 9420 implementations. It exists
// so the session layer, storage backends and CLI run against real
// cryptography.
//
// # State
//
// A Group serializes to a snapshot plus one epoch record. The snapshot holds
// the roster, the group context, the local leaf and signing keys and the
// proposal cache. The record holds the epoch secret and the application
// generation and replay state for that epoch.
//
// # Concurrency
//
// Groups are not safe for concurrent use. Callers that need a failed call to
// leave a group untouched operate on a Clone.
package mls
