package mls

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

const stateFormatVersion = 1

type status uint8

const (
	statusActive status = iota
	statusRemoved
	statusReInit
)

// cachedProposal is a proposal received or sent in the current epoch.
type cachedProposal struct {
	ref      []byte
	sender   wire.Sender
	proposal wire.Proposal

	// Set for the local member's own Update proposals: the leaf secret and,
	// when the identity rotates, the signer to adopt if the update is
	// committed.
	updateLeafSecret []byte
	updateSigner     *types.Ed25519Private
}

func (c *cachedProposal) marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, c.ref)
	c.sender.Marshal(b)
	c.proposal.Marshal(b)
	codec.WriteOpaque(b, c.updateLeafSecret)
	codec.WriteOptional(b, c.updateSigner != nil)
	if c.updateSigner != nil {
		codec.WriteOpaque(b, c.updateSigner[:])
	}
}

func (c *cachedProposal) unmarshal(s *cryptobyte.String) error {
	*c = cachedProposal{}
	if err := codec.ReadOpaque(s, &c.ref); err != nil {
		return err
	}
	if err := c.sender.Unmarshal(s); err != nil {
		return err
	}
	if err := c.proposal.Unmarshal(s); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &c.updateLeafSecret); err != nil {
		return err
	}
	var present bool
	if err := codec.ReadOptional(s, &present); err != nil {
		return err
	}
	if present {
		var raw []byte
		if err := codec.ReadOpaque(s, &raw); err != nil {
			return err
		}
		signer, err := types.Ed25519PrivateFrom(raw)
		if err != nil {
			return err
		}
		c.updateSigner = &signer
	}
	return nil
}

// epochState is the part of a group that lives in the epoch record: the
// epoch secret and the bookkeeping that changes while the epoch is current.
type epochState struct {
	epochSecret []byte
	generation  uint32
	seen        []seenKey
}

type seenKey struct {
	leaf       uint32
	generation uint32
}

func (e *epochState) hasSeen(leaf, generation uint32) bool {
	for _, k := range e.seen {
		if k.leaf == leaf && k.generation == generation {
			return true
		}
	}
	return false
}

func (e *epochState) Marshal(b *cryptobyte.Builder) {
	codec.WriteOpaque(b, e.epochSecret)
	b.AddUint32(e.generation)
	codec.WriteVector(b, len(e.seen), func(b *cryptobyte.Builder, i int) {
		b.AddUint32(e.seen[i].leaf)
		b.AddUint32(e.seen[i].generation)
	})
}

func (e *epochState) Unmarshal(s *cryptobyte.String) error {
	*e = epochState{}
	if err := codec.ReadOpaque(s, &e.epochSecret); err != nil {
		return err
	}
	if err := codec.ReadUint32(s, &e.generation); err != nil {
		return err
	}
	return codec.ReadVector(s, func(s *cryptobyte.String) error {
		var k seenKey
		if err := codec.ReadUint32(s, &k.leaf); err != nil {
			return err
		}
		if err := codec.ReadUint32(s, &k.generation); err != nil {
			return err
		}
		e.seen = append(e.seen, k)
		return nil
	})
}

func (e *epochState) wipe() {
	memzero.Zero(e.epochSecret)
	*e = epochState{}
}

// snapshot is the serialized form of a Group minus its epoch record.
type snapshot struct {
	context    wire.GroupContext
	roster     []*wire.LeafNode
	index      uint32
	signer     types.Ed25519Private
	leafSecret []byte
	interim    []byte
	status     status
	reinit     *wire.ReInit
	proposals  []cachedProposal
}

func (sn *snapshot) Marshal(b *cryptobyte.Builder) {
	b.AddUint16(stateFormatVersion)
	sn.context.Marshal(b)
	roster, err := wire.EncodeRoster(sn.roster)
	if err != nil {
		b.SetError(err)
		return
	}
	codec.WriteOpaque(b, roster)
	b.AddUint32(sn.index)
	codec.WriteOpaque(b, sn.signer[:])
	codec.WriteOpaque(b, sn.leafSecret)
	codec.WriteOpaque(b, sn.interim)
	b.AddUint8(uint8(sn.status))
	codec.WriteOptional(b, sn.reinit != nil)
	if sn.reinit != nil {
		sn.reinit.Marshal(b)
	}
	codec.WriteVector(b, len(sn.proposals), func(b *cryptobyte.Builder, i int) {
		sn.proposals[i].marshal(b)
	})
}

func (sn *snapshot) Unmarshal(s *cryptobyte.String) error {
	*sn = snapshot{}
	var v uint16
	if err := codec.ReadUint16(s, &v); err != nil {
		return err
	}
	if v != stateFormatVersion {
		return fmt.Errorf("unsupported group state version %d", v)
	}
	if err := sn.context.Unmarshal(s); err != nil {
		return err
	}
	var roster []byte
	if err := codec.ReadOpaque(s, &roster); err != nil {
		return err
	}
	leaves, err := wire.DecodeRoster(roster)
	if err != nil {
		return err
	}
	sn.roster = leaves
	if err := codec.ReadUint32(s, &sn.index); err != nil {
		return err
	}
	var signer []byte
	if err := codec.ReadOpaque(s, &signer); err != nil {
		return err
	}
	if sn.signer, err = types.Ed25519PrivateFrom(signer); err != nil {
		return err
	}
	memzero.Zero(signer)
	if err := codec.ReadOpaque(s, &sn.leafSecret); err != nil {
		return err
	}
	if err := codec.ReadOpaque(s, &sn.interim); err != nil {
		return err
	}
	var st uint8
	if err := codec.ReadUint8(s, &st); err != nil {
		return err
	}
	if st > uint8(statusReInit) {
		return errors.New("invalid group status")
	}
	sn.status = status(st)
	var present bool
	if err := codec.ReadOptional(s, &present); err != nil {
		return err
	}
	if present {
		sn.reinit = new(wire.ReInit)
		if err := sn.reinit.Unmarshal(s); err != nil {
			return err
		}
	}
	return codec.ReadVector(s, func(s *cryptobyte.String) error {
		var c cachedProposal
		if err := c.unmarshal(s); err != nil {
			return err
		}
		sn.proposals = append(sn.proposals, c)
		return nil
	})
}
