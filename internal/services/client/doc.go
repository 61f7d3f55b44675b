// Package client is the entry point for one local participant. It creates,
// joins and loads group sessions and issues key packages.
//
// Open sessions are cached by group id, so every caller that loads the same
// group shares one *group.Group handle.
package client
