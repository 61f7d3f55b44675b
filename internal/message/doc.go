// Package message wraps encoded protocol messages.
//
// A Message can be inspected for its group id, epoch, wire format and
// content type without any cryptographic processing, and round-trips its
// bytes exactly. UncheckedAuthData implements stapling: an application
// message may carry a pending proposal or commit in its authenticated data so
// the recipient can apply both without another round trip.
package message
