package wire

import (
	"io"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
)

// Sender identifies the producer of framed content. Index is a leaf index
// for member senders and an external-senders slot for external senders.
type Sender struct {
	Type  SenderType
	Index uint32
}

func (s *Sender) Marshal(b *cryptobyte.Builder) {
	b.AddUint8(uint8(s.Type))
	switch s.Type {
	case SenderTypeMember, SenderTypeExternal:
		b.AddUint32(s.Index)
	case SenderTypeNewMemberProposal, SenderTypeNewMemberCommit:
	default:
		b.SetError(ErrUnknownSenderType)
	}
}

func (s *Sender) Unmarshal(str *cryptobyte.String) error {
	*s = Sender{}
	var t uint8
	if err := codec.ReadUint8(str, &t); err != nil {
		return err
	}
	s.Type = SenderType(t)
	switch s.Type {
	case SenderTypeMember, SenderTypeExternal:
		return codec.ReadUint32(str, &s.Index)
	case SenderTypeNewMemberProposal, SenderTypeNewMemberCommit:
		return nil
	default:
		return ErrUnknownSenderType
	}
}

// FramedContent is the authenticated body shared by public and private
// framing.
type FramedContent struct {
	GroupID           []byte
	Epoch             uint64
	Sender            Sender
	AuthenticatedData []byte
	ContentType       ContentType

	Application []byte
	Proposal    *Proposal
	Commit      *Commit
}

func (c *FramedContent) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, c.GroupID)
	b.AddUint64(c.Epoch)
	c.Sender.Marshal(b)
	codec.WriteOpaque(b, c.AuthenticatedData)
	b.AddUint8(uint8(c.ContentType))
	c.marshalBody(b)
}

func (c *FramedContent) marshalBody(b *cryptobyte.Builder) {
	switch c.ContentType {
	case ContentTypeApplication:
		codec.WriteOpaque(b, c.Application)
	case ContentTypeProposal:
		c.Proposal.Marshal(b)
	case ContentTypeCommit:
		c.Commit.Marshal(b)
	default:
		b.SetError(ErrUnknownContentType)
	}
}

func (c *FramedContent) Unmarshal(s *cryptobyte.String) error {
	*c = FramedContent{}
	if err := codec.ReadOpaque(s, &c.GroupID); err != nil {
		return err
	}
	if err := codec.ReadUint64(s, &c.Epoch); err != nil {
		return err
	}
	if err := c.Sender.Unmarshal(s); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &c.AuthenticatedData); err != nil {
		return err
	}
	var ct uint8
	if err := codec.ReadUint8(s, &ct); err != nil {
		return err
	}
	c.ContentType = ContentType(ct)
	return c.unmarshalBody(s)
}

func (c *FramedContent) unmarshalBody(s *cryptobyte.String) error {
	switch c.ContentType {
	case ContentTypeApplication:
		return codec.ReadOpaque(s, &c.Application)
	case ContentTypeProposal:
		c.Proposal = new(Proposal)
		return c.Proposal.Unmarshal(s)
	case ContentTypeCommit:
		c.Commit = new(Commit)
		return c.Commit.Unmarshal(s)
	default:
		return ErrUnknownContentType
	}
}

// TBS returns the bytes a sender signs: version, wire format, the content
// and, for member senders, the serialized group context.
func (c *FramedContent) TBS(wf WireFormat, groupContext []byte) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(MLS10))
	b.AddUint16(uint16(wf))
	c.Marshal(b)
	if c.Sender.Type == SenderTypeMember || c.Sender.Type == SenderTypeNewMemberCommit {
		b.AddBytes(groupContext)
	}
	return b.Bytes()
}

// PublicMessage is signed, unencrypted framing used for handshake content.
type PublicMessage struct {
	Content         FramedContent
	Signature       []byte
	ConfirmationTag []byte // commits only
	MembershipTag   []byte // member senders only
}

func (p *PublicMessage) Marshal(b *cryptobyte.Builder) {
	p.Content.Marshal(b)
	p.marshalAuth(b)
	if p.Content.Sender.Type == SenderTypeMember {
		codec.WriteOpaque(b, p.MembershipTag)
	}
}

func (p *PublicMessage) marshalAuth(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, p.Signature)
	if p.Content.ContentType == ContentTypeCommit {
		codec.WriteOpaque(b, p.ConfirmationTag)
	}
}

func (p *PublicMessage) Unmarshal(s *cryptobyte.String) error {
	*p = PublicMessage{}
	if err := p.Content.Unmarshal(s); err != nil {
		return err
	}
	if p.Content.ContentType == ContentTypeApplication {
		return ErrUnknownContentType
	}
	if err := codec.ReadOpaque(s, &p.Signature); err != nil {
		return err
	}
	if p.Content.ContentType == ContentTypeCommit {
		if err := codec.ReadOpaque(s, &p.ConfirmationTag); err != nil {
			return err
		}
	}
	if p.Content.Sender.Type == SenderTypeMember {
		return codec.ReadOpaque(s, &p.MembershipTag)
	}
	return nil
}

// AuthenticatedContent returns the signed content plus its authentication
// data. Proposal references and transcript hashes are computed over it.
func (p *PublicMessage) AuthenticatedContent() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(WireFormatPublicMessage))
	p.Content.Marshal(b)
	p.marshalAuth(b)
	return b.Bytes()
}

// PrivateMessage is encrypted framing. The sender is hidden inside
// EncryptedSenderData.
type PrivateMessage struct {
	GroupID             []byte
	Epoch               uint64
	ContentType         ContentType
	AuthenticatedData   []byte
	EncryptedSenderData []byte
	Ciphertext          []byte
}

func (p *PrivateMessage) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, p.GroupID)
	b.AddUint64(p.Epoch)
	b.AddUint8(uint8(p.ContentType))
	codec.WriteOpaque(b, p.AuthenticatedData)
	codec.WriteOpaque(b, p.EncryptedSenderData)
	codec.WriteOpaque(b, p.Ciphertext)
}

func (p *PrivateMessage) Unmarshal(s *cryptobyte.String) error {
	*p = PrivateMessage{}
	if err := codec.ReadOpaque(s, &p.GroupID); err != nil {
		return err
	}
	if err := codec.ReadUint64(s, &p.Epoch); err != nil {
		return err
	}
	var ct uint8
	if err := codec.ReadUint8(s, &ct); err != nil {
		return err
	}
	p.ContentType = ContentType(ct)
	switch p.ContentType {
	case ContentTypeApplication, ContentTypeProposal, ContentTypeCommit:
	default:
		return ErrUnknownContentType
	}
	if err := codec.ReadOpaque(s, &p.AuthenticatedData); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &p.EncryptedSenderData); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &p.Ciphertext)
}

// SenderDataAAD is the associated data for the sender data AEAD.
func (p *PrivateMessage) SenderDataAAD() []byte {
	b := cryptobyte.NewBuilder(nil)
	codec.WriteOpaque(b, p.GroupID)
	b.AddUint64(p.Epoch)
	b.AddUint8(uint8(p.ContentType))
	return b.BytesOrPanic()
}

// ContentAAD is the associated data for the content AEAD. It covers the
// authenticated data field.
func (p *PrivateMessage) ContentAAD() []byte {
	b := cryptobyte.NewBuilder(nil)
	codec.WriteOpaque(b, p.GroupID)
	b.AddUint64(p.Epoch)
	b.AddUint8(uint8(p.ContentType))
	codec.WriteOpaque(b, p.AuthenticatedData)
	return b.BytesOrPanic()
}

// SenderData is the plaintext of PrivateMessage.EncryptedSenderData.
type SenderData struct {
	LeafIndex  uint32
	Generation uint32
	ReuseGuard [4]byte
}

func (d *SenderData) Marshal(b *cryptobyte.Builder) {
	b.AddUint32(d.LeafIndex)
	b.AddUint32(d.Generation)
	b.AddBytes(d.ReuseGuard[:])
}

func (d *SenderData) Unmarshal(s *cryptobyte.String) error {
	*d = SenderData{}
	if err := codec.ReadUint32(s, &d.LeafIndex); err != nil {
		return err
	}
	if err := codec.ReadUint32(s, &d.Generation); err != nil {
		return err
	}
	if !s.CopyBytes(d.ReuseGuard[:]) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// ApplicationContent is the plaintext of an application PrivateMessage.
type ApplicationContent struct {
	Data      []byte
	Signature []byte
}

func (a *ApplicationContent) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, a.Data)
	codec.WriteOpaque(b, a.Signature)
}

func (a *ApplicationContent) Unmarshal(s *cryptobyte.String) error {
	*a = ApplicationContent{}
	if err := codec.ReadOpaque(s, &a.Data); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &a.Signature)
}
