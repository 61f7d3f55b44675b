// Package interfaces declares the contracts the group layer consumes: the
// three storage backends, the identity provider, the local identity service
// and the cryptographic group engine.
package interfaces
