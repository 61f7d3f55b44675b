// Package wire defines the protocol structures exchanged between group
// members and their binary encoding.
//
// # Layout
//
// Field order and tags follow RFC 9420: an MLSMessage carries a version, a
// wire format tag and one of PublicMessage, PrivateMessage, Welcome,
// GroupInfo or KeyPackage. Vectors are prefixed with a variable length
// integer (see package codec).
//
// The structures are reduced where the group engine does not need the full
// RFC shape: leaf nodes carry no capabilities or lifetime, the ratchet tree
// extension lists leaves only, and GroupSecrets never carries a path secret.
//
// # Strictness
//
// Every Unmarshal rejects unknown tags, so a value that decodes re-encodes to
// the same bytes.
package wire
