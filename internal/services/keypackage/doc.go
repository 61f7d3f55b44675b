// Package keypackage issues key packages for the local signing identity.
//
// The private halves go to key package storage through the engine; the
// public halves are returned as messages ready to publish.
package keypackage
