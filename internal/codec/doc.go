// Package codec implements the TLS presentation language encoding used on the
// wire: fixed-width big-endian integers, varint-prefixed opaque vectors and
// single-byte optional flags.
//
// Decoding is strict. Varint lengths must be minimal and optional flags must
// be 0 or 1, so any value that decodes successfully re-encodes to the same
// bytes.
package codec
