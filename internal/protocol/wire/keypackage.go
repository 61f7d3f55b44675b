package wire

import (
	"bytes"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
)

// Credential binds an identity to a signature key.
type Credential struct {
	Type     CredentialType
	Identity []byte
}

func (c *Credential) Marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(c.Type))
	codec.WriteOpaque(b, c.Identity)
}

func (c *Credential) Unmarshal(s *cryptobyte.String) error {
	*c = Credential{}
	var t uint16
	if err := codec.ReadUint16(s, &t); err != nil {
		return err
	}
	c.Type = CredentialType(t)
	return codec.ReadOpaque(s, &c.Identity)
}

// Equal reports whether both credentials carry the same type and identity.
func (c Credential) Equal(o Credential) bool {
	return c.Type == o.Type && bytes.Equal(c.Identity, o.Identity)
}

// Extension is an opaque typed extension body.
type Extension struct {
	Type ExtensionType
	Data []byte
}

// Extensions is an ordered extension list with unique types.
type Extensions []Extension

// Find returns the extension of type t.
func (e Extensions) Find(t ExtensionType) (Extension, bool) {
	for _, ext := range e {
		if ext.Type == t {
			return ext, true
		}
	}
	return Extension{}, false
}

// Without returns a copy of e with every extension of type t removed.
func (e Extensions) Without(t ExtensionType) Extensions {
	out := make(Extensions, 0, len(e))
	for _, ext := range e {
		if ext.Type != t {
			out = append(out, ext)
		}
	}
	return out
}

func (e Extensions) Marshal(b *cryptobyte.Builder) {
	codec.WriteVector(b, len(e), func(b *cryptobyte.Builder, i int) {
		b.AddUint16(uint16(e[i].Type))
		codec.WriteOpaque(b, e[i].Data)
	})
}

func (e *Extensions) Unmarshal(s *cryptobyte.String) error {
	*e = nil
	seen := make(map[ExtensionType]struct{})
	return codec.ReadVector(s, func(s *cryptobyte.String) error {
		var ext Extension
		var t uint16
		if err := codec.ReadUint16(s, &t); err != nil {
			return err
		}
		ext.Type = ExtensionType(t)
		if _, dup := seen[ext.Type]; dup {
			return ErrDuplicateExtension
		}
		seen[ext.Type] = struct{}{}
		if err := codec.ReadOpaque(s, &ext.Data); err != nil {
			return err
		}
		*e = append(*e, ext)
		return nil
	})
}

// LeafNode is a member's public leaf: encryption key, signature key and
// credential, signed by the signature key.
type LeafNode struct {
	EncryptionKey []byte
	SignatureKey  []byte
	Credential    Credential
	Extensions    Extensions
	Signature     []byte
}

// MarshalTBS writes the signed portion of the leaf.
func (l *LeafNode) MarshalTBS(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, l.EncryptionKey)
	codec.WriteOpaque(b, l.SignatureKey)
	l.Credential.Marshal(b)
	l.Extensions.Marshal(b)
}

func (l *LeafNode) Marshal(b *cryptobyte.Builder) {
	l.MarshalTBS(b)
	codec.WriteOpaque(b, l.Signature)
}

func (l *LeafNode) Unmarshal(s *cryptobyte.String) error {
	*l = LeafNode{}
	if err := codec.ReadOpaque(s, &l.EncryptionKey); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &l.SignatureKey); err != nil {
		return err
	}
	if err := l.Credential.Unmarshal(s); err != nil {
		return err
	}
	if err := l.Extensions.Unmarshal(s); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &l.Signature)
}

// KeyPackage advertises a prospective member's init key and leaf.
type KeyPackage struct {
	Version     ProtocolVersion
	CipherSuite CipherSuite
	InitKey     []byte
	LeafNode    LeafNode
	Extensions  Extensions
	NotAfter    uint64
	Signature   []byte
}

// MarshalTBS writes the signed portion of the key package.
func (k *KeyPackage) MarshalTBS(b *cryptobyte.Builder) {
	b.AddUint16(uint16(k.Version))
	b.AddUint16(uint16(k.CipherSuite))
	codec.WriteOpaque(b, k.InitKey)
	k.LeafNode.Marshal(b)
	k.Extensions.Marshal(b)
	b.AddUint64(k.NotAfter)
}

func (k *KeyPackage) Marshal(b *cryptobyte.Builder) {
	k.MarshalTBS(b)
	codec.WriteOpaque(b, k.Signature)
}

func (k *KeyPackage) Unmarshal(s *cryptobyte.String) error {
	*k = KeyPackage{}
	var v, cs uint16
	if err := codec.ReadUint16(s, &v); err != nil {
		return err
	}
	if err := codec.ReadUint16(s, &cs); err != nil {
		return err
	}
	k.Version, k.CipherSuite = ProtocolVersion(v), CipherSuite(cs)
	if err := codec.ReadOpaque(s, &k.InitKey); err != nil {
		return err
	}
	if err := k.LeafNode.Unmarshal(s); err != nil {
		return err
	}
	if err := k.Extensions.Unmarshal(s); err != nil {
		return err
	}
	if err := codec.ReadUint64(s, &k.NotAfter); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &k.Signature)
}
