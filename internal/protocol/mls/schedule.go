package mls

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

func marshalWith(f func(*cryptobyte.Builder)) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	f(b)
	return b.Bytes()
}

func treeHash(roster []*wire.LeafNode) ([]byte, error) {
	enc, err := wire.EncodeRoster(roster)
	if err != nil {
		return nil, err
	}
	return crypto.Hash(enc), nil
}

// epochKeys are the secrets derived from one epoch secret.
type epochKeys struct {
	senderData []byte
	encryption []byte
	exporter   []byte
	confirm    []byte
	membership []byte
	init       []byte
}

func deriveEpochKeys(epochSecret []byte) (*epochKeys, error) {
	k := new(epochKeys)
	for _, d := range []struct {
		label string
		out   *[]byte
	}{
		{"sender data", &k.senderData},
		{"encryption", &k.encryption},
		{"exporter", &k.exporter},
		{"confirm", &k.confirm},
		{"membership", &k.membership},
		{"init", &k.init},
	} {
		s, err := crypto.DeriveSecret(epochSecret, d.label)
		if err != nil {
			return nil, err
		}
		*d.out = s
	}
	return k, nil
}

func (k *epochKeys) wipe() {
	memzero.ZeroAll(k.senderData, k.encryption, k.exporter, k.confirm, k.membership, k.init)
}

// joinerSecret starts the next epoch from the previous init secret and the
// commit secret.
func joinerSecret(initSecret, commitSecret, groupContext []byte) ([]byte, error) {
	prk := crypto.Extract(initSecret, commitSecret)
	defer memzero.Zero(prk)
	return crypto.ExpandWithLabel(prk, "joiner", groupContext, crypto.HashSize)
}

// fromJoiner mixes the PSK secret into the joiner secret and returns the
// welcome and epoch secrets of the new epoch.
func fromJoiner(joiner, pskSecret, groupContext []byte) (welcome, epoch []byte, err error) {
	member := crypto.Extract(joiner, pskSecret)
	defer memzero.Zero(member)
	if welcome, err = crypto.DeriveSecret(member, "welcome"); err != nil {
		return nil, nil, err
	}
	if epoch, err = crypto.ExpandWithLabel(member, "epoch", groupContext, crypto.HashSize); err != nil {
		return nil, nil, err
	}
	return welcome, epoch, nil
}

func welcomeKeys(welcomeSecret []byte) (key, nonce []byte, err error) {
	if key, err = crypto.ExpandWithLabel(welcomeSecret, "key", nil, crypto.KeySize); err != nil {
		return nil, nil, err
	}
	if nonce, err = crypto.ExpandWithLabel(welcomeSecret, "nonce", nil, crypto.NonceSize); err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}

// pskSecret chains the listed pre-shared keys. With no PSKs it is the zero
// vector.
func pskSecret(ids []wire.PreSharedKeyID, store interfaces.PreSharedKeyStorage) ([]byte, error) {
	secret := make([]byte, crypto.HashSize)
	zero := make([]byte, crypto.HashSize)
	for i := range ids {
		if store == nil {
			return nil, types.E(types.KindProtocol, "", fmt.Errorf("%w: no pre-shared key storage", types.ErrMissingPSK))
		}
		psk, ok, err := store.Get(ids[i].ID)
		if err != nil {
			return nil, types.E(types.KindStorage, "get pre-shared key", err)
		}
		if !ok {
			return nil, types.E(types.KindProtocol, "", types.ErrMissingPSK)
		}
		label, err := marshalWith(func(b *cryptobyte.Builder) {
			ids[i].Marshal(b)
			b.AddUint16(uint16(i))
			b.AddUint16(uint16(len(ids)))
		})
		if err != nil {
			return nil, err
		}
		extracted := crypto.Extract(zero, psk)
		input, err := crypto.ExpandWithLabel(extracted, "derived psk", label, crypto.HashSize)
		memzero.Zero(extracted)
		if err != nil {
			return nil, err
		}
		next := crypto.Extract(input, secret)
		memzero.ZeroAll(input, secret)
		secret = next
	}
	return secret, nil
}

// confirmedTranscriptHash extends the interim hash with a commit's signed
// content.
func confirmedTranscriptHash(interim []byte, pm *wire.PublicMessage) ([]byte, error) {
	input, err := marshalWith(func(b *cryptobyte.Builder) {
		b.AddUint16(uint16(wire.WireFormatPublicMessage))
		pm.Content.Marshal(b)
		codec.WriteOpaque(b, pm.Signature)
	})
	if err != nil {
		return nil, err
	}
	return crypto.Hash(interim, input), nil
}

func interimTranscriptHash(confirmed, confirmationTag []byte) []byte {
	return crypto.Hash(confirmed, codec.EncodeOpaque(confirmationTag))
}

// membershipInput is what the membership tag of a member-sent public
// message covers.
func membershipInput(pm *wire.PublicMessage, groupContext []byte) ([]byte, error) {
	tbs, err := pm.Content.TBS(wire.WireFormatPublicMessage, groupContext)
	if err != nil {
		return nil, err
	}
	return marshalWith(func(b *cryptobyte.Builder) {
		b.AddBytes(tbs)
		codec.WriteOpaque(b, pm.Signature)
		if pm.Content.ContentType == wire.ContentTypeCommit {
			codec.WriteOpaque(b, pm.ConfirmationTag)
		}
	})
}

// applicationKey derives the key and nonce for one (leaf, generation) pair.
func applicationKey(encryptionSecret []byte, leaf, generation uint32) (key, nonce []byte, err error) {
	var l, g [4]byte
	binary.BigEndian.PutUint32(l[:], leaf)
	binary.BigEndian.PutUint32(g[:], generation)
	base, err := crypto.ExpandWithLabel(encryptionSecret, "application", l[:], crypto.HashSize)
	if err != nil {
		return nil, nil, err
	}
	defer memzero.Zero(base)
	if key, err = crypto.ExpandWithLabel(base, "key", g[:], crypto.KeySize); err != nil {
		return nil, nil, err
	}
	if nonce, err = crypto.ExpandWithLabel(base, "nonce", g[:], crypto.NonceSize); err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}

// senderDataKey derives the sender data key and nonce from a ciphertext
// sample.
func senderDataKey(senderDataSecret, ciphertext []byte) (key, nonce []byte, err error) {
	sample := ciphertext
	if len(sample) > crypto.HashSize {
		sample = sample[:crypto.HashSize]
	}
	if key, err = crypto.ExpandWithLabel(senderDataSecret, "key", sample, crypto.KeySize); err != nil {
		return nil, nil, err
	}
	if nonce, err = crypto.ExpandWithLabel(senderDataSecret, "nonce", sample, crypto.NonceSize); err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}

func applyReuseGuard(nonce []byte, guard [4]byte) {
	for i := range guard {
		nonce[i] ^= guard[i]
	}
}
