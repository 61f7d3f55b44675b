// Package crypto exposes the primitives of cipher suite 0x0003
// (X25519, ChaCha20-Poly1305, SHA-256, Ed25519) used by the group engine.
//
// Contents
//
//   - X25519 key generation and Diffie-Hellman (GenerateX25519, DH,
//     PublicX25519)
//   - Ed25519 key generation and labelled signatures (GenerateEd25519,
//     SignWithLabel, VerifyWithLabel)
//   - The labelled key schedule helpers (Extract, ExpandWithLabel,
//     DeriveSecret, RefHash, MAC)
//   - AEAD and single-shot public key encryption (Seal, Open, SealHPKE,
//     OpenHPKE)
//   - Short public-key fingerprints for display (Fingerprint)
//
// # Notes
//
// SealHPKE is a compact DHKEM-style construction: an ephemeral X25519 share,
// an HKDF over the shared secret bound to both public keys, and
// ChaCha20-Poly1305. It is not wire compatible with RFC 9180.
package crypto
