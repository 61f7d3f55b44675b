package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
)

// MLSMessage is the outer envelope of every protocol message. Exactly the
// body matching WireFormat is set.
type MLSMessage struct {
	Version    ProtocolVersion
	WireFormat WireFormat

	Public     *PublicMessage
	Private    *PrivateMessage
	Welcome    *Welcome
	GroupInfo  *GroupInfo
	KeyPackage *KeyPackage
}

func (m *MLSMessage) Marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(m.Version))
	b.AddUint16(uint16(m.WireFormat))
	switch m.WireFormat {
	case WireFormatPublicMessage:
		m.Public.Marshal(b)
	case WireFormatPrivateMessage:
		m.Private.Marshal(b)
	case WireFormatWelcome:
		m.Welcome.Marshal(b)
	case WireFormatGroupInfo:
		m.GroupInfo.Marshal(b)
	case WireFormatKeyPackage:
		m.KeyPackage.Marshal(b)
	default:
		b.SetError(ErrUnknownWireFormat)
	}
}

func (m *MLSMessage) Unmarshal(s *cryptobyte.String) error {
	*m = MLSMessage{}
	var v, wf uint16
	if err := codec.ReadUint16(s, &v); err != nil {
		return err
	}
	if ProtocolVersion(v) != MLS10 {
		return ErrUnsupportedVersion
	}
	if err := codec.ReadUint16(s, &wf); err != nil {
		return err
	}
	m.Version, m.WireFormat = ProtocolVersion(v), WireFormat(wf)
	switch m.WireFormat {
	case WireFormatPublicMessage:
		m.Public = new(PublicMessage)
		return m.Public.Unmarshal(s)
	case WireFormatPrivateMessage:
		m.Private = new(PrivateMessage)
		return m.Private.Unmarshal(s)
	case WireFormatWelcome:
		m.Welcome = new(Welcome)
		return m.Welcome.Unmarshal(s)
	case WireFormatGroupInfo:
		m.GroupInfo = new(GroupInfo)
		return m.GroupInfo.Unmarshal(s)
	case WireFormatKeyPackage:
		m.KeyPackage = new(KeyPackage)
		return m.KeyPackage.Unmarshal(s)
	default:
		return ErrUnknownWireFormat
	}
}

// Decode parses a complete MLSMessage and rejects trailing bytes.
func Decode(data []byte) (*MLSMessage, error) {
	m := new(MLSMessage)
	if err := codec.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode serializes m.
func Encode(m *MLSMessage) ([]byte, error) {
	return codec.Marshal(m)
}

// GroupID returns the group id carried in the envelope, if any.
func (m *MLSMessage) GroupID() ([]byte, bool) {
	switch m.WireFormat {
	case WireFormatPublicMessage:
		return m.Public.Content.GroupID, true
	case WireFormatPrivateMessage:
		return m.Private.GroupID, true
	case WireFormatGroupInfo:
		return m.GroupInfo.GroupContext.GroupID, true
	}
	return nil, false
}

// Epoch returns the epoch carried in the envelope, if any.
func (m *MLSMessage) Epoch() (uint64, bool) {
	switch m.WireFormat {
	case WireFormatPublicMessage:
		return m.Public.Content.Epoch, true
	case WireFormatPrivateMessage:
		return m.Private.Epoch, true
	case WireFormatGroupInfo:
		return m.GroupInfo.GroupContext.Epoch, true
	}
	return 0, false
}

// ContentType returns the declared content type of framed messages and zero
// for everything else.
func (m *MLSMessage) ContentType() ContentType {
	switch m.WireFormat {
	case WireFormatPublicMessage:
		return m.Public.Content.ContentType
	case WireFormatPrivateMessage:
		return m.Private.ContentType
	}
	return 0
}
