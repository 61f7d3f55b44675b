// Package types holds the plain data types shared by the group session,
// the engine and the storage backends: identities, roster members, epoch
// records, key package data, the received-message, proposal and
// commit-effect unions, and the typed Error with its kinds.
package types
