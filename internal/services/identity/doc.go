// Package identity owns who the local participant is and which credentials
// the group accepts.
//
// Service creates, encrypts and loads the local Ed25519 signing identity
// through a domain.IdentityStore and enforces the passphrase policy.
//
// BasicProvider is the default domain.IdentityProvider: basic credentials
// only, identity equals the credential bytes, no further checks.
package identity
