package message

import (
	"bytes"
	"errors"
	"fmt"

	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
)

// ContentType is the framed content tag inspected by UncheckedAuthData.
type ContentType = wire.ContentType

// WireFormat is the outer message tag.
type WireFormat = wire.WireFormat

const (
	ContentTypeApplication = wire.ContentTypeApplication
	ContentTypeProposal    = wire.ContentTypeProposal
	ContentTypeCommit      = wire.ContentTypeCommit
)

// Message is one encoded protocol message. It keeps the exact bytes it was
// parsed from, so Bytes always returns the input of Parse.
type Message struct {
	raw     []byte
	decoded *wire.MLSMessage
}

// Parse decodes b. Unknown tags, non-minimal lengths and trailing bytes are
// rejected with a codec error.
func Parse(b []byte) (*Message, error) {
	const op = "message.Parse"
	m, err := wire.Decode(b)
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	return &Message{raw: append([]byte(nil), b...), decoded: m}, nil
}

// New encodes m into a Message.
func New(m *wire.MLSMessage) (*Message, error) {
	raw, err := wire.Encode(m)
	if err != nil {
		return nil, types.E(types.KindCodec, "message.New", err)
	}
	return &Message{raw: raw, decoded: m}, nil
}

// Bytes returns a copy of the encoded message.
func (m *Message) Bytes() []byte {
	return append([]byte(nil), m.raw...)
}

// Equal reports whether both messages have the same encoding.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	return bytes.Equal(m.raw, o.raw)
}

// Wire returns the decoded message. Callers must not modify it.
func (m *Message) Wire() *wire.MLSMessage { return m.decoded }

// WireFormat returns the outer message tag.
func (m *Message) WireFormat() WireFormat { return m.decoded.WireFormat }

// GroupID returns the group id for framed messages and group infos.
func (m *Message) GroupID() ([]byte, bool) {
	id, ok := m.decoded.GroupID()
	if !ok {
		return nil, false
	}
	return append([]byte(nil), id...), true
}

// Epoch returns the epoch for framed messages and group infos.
func (m *Message) Epoch() (uint64, bool) { return m.decoded.Epoch() }

// ContentType returns the declared content type, or zero for messages that
// carry no framed content.
func (m *Message) ContentType() ContentType { return m.decoded.ContentType() }

// ContentTypeMismatchError reports a content type other than the one the
// caller expected.
type ContentTypeMismatchError struct {
	Expected ContentType
	Actual   ContentType
}

func (e *ContentTypeMismatchError) Error() string {
	return fmt.Sprintf("content type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// UncheckedAuthData extracts a message stapled into the authenticated data
// of a private message.
//
// m must be a private message whose content type is expectedOuter. If its
// authenticated data is empty the result is nil. Otherwise the field is
// parsed as a Message and, when expectedInner is non-nil, its content type
// must equal *expectedInner. Mismatches fail with a protocol error wrapping
// *ContentTypeMismatchError.
//
// No cryptographic check is made on the inner message here. The
// authenticated data is bound to the outer message by its AEAD, so once the
// outer message has been processed successfully, forging the inner message
// requires breaking the outer message's authentication. Before that, the
// inner message is only as trustworthy as the bytes on the wire.
func (m *Message) UncheckedAuthData(expectedOuter ContentType, expectedInner *ContentType) (*Message, error) {
	const op = "message.UncheckedAuthData"
	if m.decoded.WireFormat != wire.WireFormatPrivateMessage {
		return nil, types.E(types.KindProtocol, op,
			fmt.Errorf("%w: %s", types.ErrUnexpectedMessageFormat, m.decoded.WireFormat))
	}
	priv := m.decoded.Private
	if priv.ContentType != expectedOuter {
		return nil, types.E(types.KindProtocol, op,
			&ContentTypeMismatchError{Expected: expectedOuter, Actual: priv.ContentType})
	}
	if len(priv.AuthenticatedData) == 0 {
		return nil, nil
	}
	inner, err := Parse(priv.AuthenticatedData)
	if err != nil {
		return nil, types.E(types.KindCodec, op, errors.Unwrap(err))
	}
	if expectedInner != nil && inner.ContentType() != *expectedInner {
		return nil, types.E(types.KindProtocol, op,
			&ContentTypeMismatchError{Expected: *expectedInner, Actual: inner.ContentType()})
	}
	return inner, nil
}
