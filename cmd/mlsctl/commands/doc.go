// Package commands defines the mlsctl CLI.
//
// Commands
//
//   - init           Create the local signing identity
//   - fingerprint    Print the identity fingerprint
//   - keypackage     Write a fresh key package to a file
//   - create         Create a group
//   - add            Add members from key package files
//   - join           Join a group from a Welcome file
//   - process        Apply a message file to a group
//   - send           Encrypt an application message
//   - commit         Commit pending proposals
//   - members        List the roster
//   - export-secret  Derive a secret from the current epoch
//
// # Implementation
//
// Messages travel as files; there is no transport. The root command builds
// the logger, the identity file store and the SQLite group database under
// --home before any subcommand runs. Commands that touch groups unlock the
// identity with -p and write the group back to the database after every
// change.
package commands
