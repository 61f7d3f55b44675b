// Package domain defines the data models and contracts shared across the
// group layer. It contains plain types and interfaces only; the aliases in
// this package let callers import one path instead of two.
package domain
