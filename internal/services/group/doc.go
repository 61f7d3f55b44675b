// Package group implements a participant's session in one group.
//
// A Group wraps the engine state of the group behind a mutex and turns
// engine results into the types in domain/types. Every mutating call runs
// on a clone of the engine state, so an error leaves the session exactly as
// it was. Persistence is explicit: WriteToStorage stores the snapshot and
// the current epoch record in a single atomic storage write.
package group
