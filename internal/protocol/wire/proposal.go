package wire

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
)

// PreSharedKeyID names an external pre-shared key and binds a fresh nonce.
type PreSharedKeyID struct {
	ID    []byte
	Nonce []byte
}

func (p *PreSharedKeyID) Marshal(b *cryptobyte.Builder) {
	b.AddUint8(uint8(PSKTypeExternal))
	codec.WriteOpaque(b, p.ID)
	codec.WriteOpaque(b, p.Nonce)
}

func (p *PreSharedKeyID) Unmarshal(s *cryptobyte.String) error {
	*p = PreSharedKeyID{}
	var t uint8
	if err := codec.ReadUint8(s, &t); err != nil {
		return err
	}
	if PSKType(t) != PSKTypeExternal {
		return errors.New("wire: only external psk ids are supported")
	}
	if err := codec.ReadOpaque(s, &p.ID); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &p.Nonce)
}

// ReInit asks the group to restart under new parameters.
type ReInit struct {
	GroupID     []byte
	Version     ProtocolVersion
	CipherSuite CipherSuite
	Extensions  Extensions
}

func (r *ReInit) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, r.GroupID)
	b.AddUint16(uint16(r.Version))
	b.AddUint16(uint16(r.CipherSuite))
	r.Extensions.Marshal(b)
}

func (r *ReInit) Unmarshal(s *cryptobyte.String) error {
	*r = ReInit{}
	if err := codec.ReadOpaque(s, &r.GroupID); err != nil {
		return err
	}
	var v, cs uint16
	if err := codec.ReadUint16(s, &v); err != nil {
		return err
	}
	if err := codec.ReadUint16(s, &cs); err != nil {
		return err
	}
	r.Version, r.CipherSuite = ProtocolVersion(v), CipherSuite(cs)
	return r.Extensions.Unmarshal(s)
}

// Proposal is a tagged union; exactly the field matching Type is set.
type Proposal struct {
	Type ProposalType

	KeyPackage *KeyPackage     // add
	LeafNode   *LeafNode       // update
	Removed    uint32          // remove
	PSK        *PreSharedKeyID // psk
	ReInit     *ReInit         // reinit
	KEMOutput  []byte          // external_init
	Extensions Extensions      // group_context_extensions
}

func (p *Proposal) Marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(p.Type))
	switch p.Type {
	case ProposalTypeAdd:
		p.KeyPackage.Marshal(b)
	case ProposalTypeUpdate:
		p.LeafNode.Marshal(b)
	case ProposalTypeRemove:
		b.AddUint32(p.Removed)
	case ProposalTypePSK:
		p.PSK.Marshal(b)
	case ProposalTypeReInit:
		p.ReInit.Marshal(b)
	case ProposalTypeExternalInit:
		codec.WriteOpaque(b, p.KEMOutput)
	case ProposalTypeGroupContextExtensions:
		p.Extensions.Marshal(b)
	default:
		b.SetError(ErrUnknownProposalType)
	}
}

func (p *Proposal) Unmarshal(s *cryptobyte.String) error {
	*p = Proposal{}
	var t uint16
	if err := codec.ReadUint16(s, &t); err != nil {
		return err
	}
	p.Type = ProposalType(t)
	switch p.Type {
	case ProposalTypeAdd:
		p.KeyPackage = new(KeyPackage)
		return p.KeyPackage.Unmarshal(s)
	case ProposalTypeUpdate:
		p.LeafNode = new(LeafNode)
		return p.LeafNode.Unmarshal(s)
	case ProposalTypeRemove:
		return codec.ReadUint32(s, &p.Removed)
	case ProposalTypePSK:
		p.PSK = new(PreSharedKeyID)
		return p.PSK.Unmarshal(s)
	case ProposalTypeReInit:
		p.ReInit = new(ReInit)
		return p.ReInit.Unmarshal(s)
	case ProposalTypeExternalInit:
		return codec.ReadOpaque(s, &p.KEMOutput)
	case ProposalTypeGroupContextExtensions:
		return p.Extensions.Unmarshal(s)
	default:
		return ErrUnknownProposalType
	}
}

// ProposalOrRef is a commit entry: a proposal carried by value or a reference
// to a proposal sent earlier in the epoch.
type ProposalOrRef struct {
	Proposal  *Proposal
	Reference []byte
}

const (
	proposalOrRefProposal  uint8 = 1
	proposalOrRefReference uint8 = 2
)

func (p *ProposalOrRef) Marshal(b *cryptobyte.Builder) {
	if p.Proposal != nil {
		b.AddUint8(proposalOrRefProposal)
		p.Proposal.Marshal(b)
		return
	}
	b.AddUint8(proposalOrRefReference)
	codec.WriteOpaque(b, p.Reference)
}

func (p *ProposalOrRef) Unmarshal(s *cryptobyte.String) error {
	*p = ProposalOrRef{}
	var t uint8
	if err := codec.ReadUint8(s, &t); err != nil {
		return err
	}
	switch t {
	case proposalOrRefProposal:
		p.Proposal = new(Proposal)
		return p.Proposal.Unmarshal(s)
	case proposalOrRefReference:
		return codec.ReadOpaque(s, &p.Reference)
	default:
		return errors.New("wire: invalid proposal_or_ref tag")
	}
}

// HPKECiphertext is a sealed payload plus the encapsulated key.
type HPKECiphertext struct {
	KEMOutput  []byte
	Ciphertext []byte
}

func (h *HPKECiphertext) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, h.KEMOutput)
	codec.WriteOpaque(b, h.Ciphertext)
}

func (h *HPKECiphertext) Unmarshal(s *cryptobyte.String) error {
	*h = HPKECiphertext{}
	if err := codec.ReadOpaque(s, &h.KEMOutput); err != nil {
		return err
	}
	return codec.ReadOpaque(s, &h.Ciphertext)
}

// PathSecret carries the commit secret sealed to one recipient leaf.
type PathSecret struct {
	Recipient  uint32
	Ciphertext HPKECiphertext
}

// UpdatePath replaces the committer's leaf and distributes the commit secret.
type UpdatePath struct {
	LeafNode LeafNode
	Secrets  []PathSecret
}

func (u *UpdatePath) Marshal(b *cryptobyte.Builder) {
	u.LeafNode.Marshal(b)
	codec.WriteVector(b, len(u.Secrets), func(b *cryptobyte.Builder, i int) {
		b.AddUint32(u.Secrets[i].Recipient)
		u.Secrets[i].Ciphertext.Marshal(b)
	})
}

func (u *UpdatePath) Unmarshal(s *cryptobyte.String) error {
	*u = UpdatePath{}
	if err := u.LeafNode.Unmarshal(s); err != nil {
		return err
	}
	return codec.ReadVector(s, func(s *cryptobyte.String) error {
		var ps PathSecret
		if err := codec.ReadUint32(s, &ps.Recipient); err != nil {
			return err
		}
		if err := ps.Ciphertext.Unmarshal(s); err != nil {
			return err
		}
		u.Secrets = append(u.Secrets, ps)
		return nil
	})
}

// Commit applies a batch of proposals and optionally refreshes the
// committer's leaf.
type Commit struct {
	Proposals []ProposalOrRef
	Path      *UpdatePath
}

func (c *Commit) Marshal(b *cryptobyte.Builder) {
	codec.WriteVector(b, len(c.Proposals), func(b *cryptobyte.Builder, i int) {
		c.Proposals[i].Marshal(b)
	})
	codec.WriteOptional(b, c.Path != nil)
	if c.Path != nil {
		c.Path.Marshal(b)
	}
}

func (c *Commit) Unmarshal(s *cryptobyte.String) error {
	*c = Commit{}
	err := codec.ReadVector(s, func(s *cryptobyte.String) error {
		var p ProposalOrRef
		if err := p.Unmarshal(s); err != nil {
			return err
		}
		c.Proposals = append(c.Proposals, p)
		return nil
	})
	if err != nil {
		return err
	}
	var present bool
	if err := codec.ReadOptional(s, &present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	c.Path = new(UpdatePath)
	return c.Path.Unmarshal(s)
}
