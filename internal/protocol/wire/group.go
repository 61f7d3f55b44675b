package wire

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
)

// GroupContext summarises the agreed state of one epoch.
type GroupContext struct {
	Version                 ProtocolVersion
	CipherSuite             CipherSuite
	GroupID                 []byte
	Epoch                   uint64
	TreeHash                []byte
	ConfirmedTranscriptHash []byte
	Extensions              Extensions
}

func (g *GroupContext) Marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(g.Version))
	b.AddUint16(uint16(g.CipherSuite))
	codec.WriteOpaque(b, g.GroupID)
	b.AddUint64(g.Epoch)
	codec.WriteOpaque(b, g.TreeHash)
	codec.WriteOpaque(b, g.ConfirmedTranscriptHash)
	g.Extensions.Marshal(b)
}

func (g *GroupContext) Unmarshal(s *cryptobyte.String) error {
	*g = GroupContext{}
	var v, cs uint16
	if err := codec.ReadUint16(s, &v); err != nil {
		return err
	}
	if err := codec.ReadUint16(s, &cs); err != nil {
		return err
	}
	g.Version, g.CipherSuite = ProtocolVersion(v), CipherSuite(cs)
	if err := codec.ReadOpaque(s, &g.GroupID); err != nil {
		return err
	}
	if err := codec.ReadUint64(s, &g.Epoch); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &g.TreeHash); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &g.ConfirmedTranscriptHash); err != nil {
		return err
	}
	return g.Extensions.Unmarshal(s)
}

// GroupInfo lets a new member reconstruct the group context. The roster
// travels in a ratchet_tree extension.
type GroupInfo struct {
	GroupContext    GroupContext
	Extensions      Extensions
	ConfirmationTag []byte
	Signer          uint32
	Signature       []byte
}

// MarshalTBS writes the signed portion of the group info.
func (g *GroupInfo) MarshalTBS(b *cryptobyte.Builder) {
	g.GroupContext.Marshal(b)
	g.Extensions.Marshal(b)
	codec.WriteOpaque(b, g.ConfirmationTag)
	b.AddUint32(g.Signer)
}

func (g *GroupInfo) Marshal(b *cryptobyte.Builder) {
	g.MarshalTBS(b)
	codec.WriteOpaque(b, g.Signature)
}

func (g *GroupInfo) Unmarshal(s *cryptobyte.String) error {
	*g = GroupInfo{}
	if err := g.GroupContext.Unmarshal(s); err != nil {
		return err
	}
	if err := g.Extensions.Unmarshal(s); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &g.ConfirmationTag); err != nil {
		return err
	}
	if err := codec.ReadUint32(s, &g.Signer); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &g.Signature)
}

// GroupSecrets is sealed to each new member's init key.
type GroupSecrets struct {
	JoinerSecret []byte
	PSKs         []PreSharedKeyID
}

func (g *GroupSecrets) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, g.JoinerSecret)
	// path_secret is never sent: new members receive no tree secrets.
	codec.WriteOptional(b, false)
	codec.WriteVector(b, len(g.PSKs), func(b *cryptobyte.Builder, i int) {
		g.PSKs[i].Marshal(b)
	})
}

func (g *GroupSecrets) Unmarshal(s *cryptobyte.String) error {
	*g = GroupSecrets{}
	if err := codec.ReadOpaque(s, &g.JoinerSecret); err != nil {
		return err
	}
	var present bool
	if err := codec.ReadOptional(s, &present); err != nil {
		return err
	}
	if present {
		return errors.New("wire: unexpected path secret in group secrets")
	}
	return codec.ReadVector(s, func(s *cryptobyte.String) error {
		var id PreSharedKeyID
		if err := id.Unmarshal(s); err != nil {
			return err
		}
		g.PSKs = append(g.PSKs, id)
		return nil
	})
}

// EncryptedGroupSecrets addresses sealed group secrets to one key package.
type EncryptedGroupSecrets struct {
	NewMember []byte
	Secrets   HPKECiphertext
}

// Welcome admits one or more new members to an epoch.
type Welcome struct {
	CipherSuite        CipherSuite
	Secrets            []EncryptedGroupSecrets
	EncryptedGroupInfo []byte
}

func (w *Welcome) Marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(w.CipherSuite))
	codec.WriteVector(b, len(w.Secrets), func(b *cryptobyte.Builder, i int) {
		codec.WriteOpaque(b, w.Secrets[i].NewMember)
		w.Secrets[i].Secrets.Marshal(b)
	})
	codec.WriteOpaque(b, w.EncryptedGroupInfo)
}

func (w *Welcome) Unmarshal(s *cryptobyte.String) error {
	*w = Welcome{}
	var cs uint16
	if err := codec.ReadUint16(s, &cs); err != nil {
		return err
	}
	w.CipherSuite = CipherSuite(cs)
	err := codec.ReadVector(s, func(s *cryptobyte.String) error {
		var egs EncryptedGroupSecrets
		if err := codec.ReadOpaque(s, &egs.NewMember); err != nil {
			return err
		}
		if err := egs.Secrets.Unmarshal(s); err != nil {
			return err
		}
		w.Secrets = append(w.Secrets, egs)
		return nil
	})
	if err != nil {
		return err
	}
	return codec.ReadOpaque(s, &w.EncryptedGroupInfo)
}

// EncodeRoster encodes leaves as a ratchet_tree extension body. Nil entries
// are blank leaves.
func EncodeRoster(leaves []*LeafNode) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	codec.WriteVector(b, len(leaves), func(b *cryptobyte.Builder, i int) {
		codec.WriteOptional(b, leaves[i] != nil)
		if leaves[i] != nil {
			leaves[i].Marshal(b)
		}
	})
	return b.Bytes()
}

// DecodeRoster is the inverse of EncodeRoster.
func DecodeRoster(data []byte) ([]*LeafNode, error) {
	var leaves []*LeafNode
	s := cryptobyte.String(data)
	err := codec.ReadVector(&s, func(s *cryptobyte.String) error {
		var present bool
		if err := codec.ReadOptional(s, &present); err != nil {
			return err
		}
		if !present {
			leaves = append(leaves, nil)
			return nil
		}
		leaf := new(LeafNode)
		if err := leaf.Unmarshal(s); err != nil {
			return err
		}
		leaves = append(leaves, leaf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, codec.ErrTrailingData
	}
	return leaves, nil
}

// ExternalSender is an entry of the external_senders group context extension.
type ExternalSender struct {
	SignatureKey []byte
	Credential   Credential
}

// EncodeExternalSenders encodes an external_senders extension body.
func EncodeExternalSenders(senders []ExternalSender) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	codec.WriteVector(b, len(senders), func(b *cryptobyte.Builder, i int) {
		codec.WriteOpaque(b, senders[i].SignatureKey)
		senders[i].Credential.Marshal(b)
	})
	return b.Bytes()
}

// DecodeExternalSenders is the inverse of EncodeExternalSenders.
func DecodeExternalSenders(data []byte) ([]ExternalSender, error) {
	var out []ExternalSender
	s := cryptobyte.String(data)
	err := codec.ReadVector(&s, func(s *cryptobyte.String) error {
		var es ExternalSender
		if err := codec.ReadOpaque(s, &es.SignatureKey); err != nil {
			return err
		}
		if err := es.Credential.Unmarshal(s); err != nil {
			return err
		}
		out = append(out, es)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, codec.ErrTrailingData
	}
	return out, nil
}
