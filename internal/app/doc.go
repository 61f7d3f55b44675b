// Package app wires application dependencies for the CLI.
//
// NewWire builds the logger, the sealed identity file store and the SQLite
// group database from Config. Wire.Open unlocks the identity and adds the
// engine and group client on top, returned as an App.
package app
