package mls

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

// CipherSuite is the only suite the engine implements.
const CipherSuite = wire.CipherSuiteX25519ChaCha20

// DefaultKeyPackageLifetime bounds key packages when Config leaves it unset.
const DefaultKeyPackageLifetime = 30 * 24 * time.Hour

const keyPackageRefLabel = "MLS 1.0 KeyPackage Reference"

// Config configures an Engine for one local signing identity.
type Config struct {
	Signer   types.SignatureSecretKey
	Identity types.SigningIdentity

	KeyPackages interfaces.KeyPackageStorage
	// PSKs may be nil, in which case commits referencing a pre-shared key
	// fail.
	PSKs     interfaces.PreSharedKeyStorage
	Provider interfaces.IdentityProvider

	KeyPackageLifetime time.Duration
	Now                func() time.Time
	Logger             *zap.Logger
}

// Engine creates and restores groups for one signing identity.
type Engine struct {
	cfg *Config
}

var _ interfaces.Engine = (*Engine)(nil)

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.KeyPackages == nil {
		return nil, errors.New("mls: key package storage is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("mls: identity provider is required")
	}
	pub := cfg.Signer.Public()
	if !bytes.Equal(pub[:], cfg.Identity.SignatureKey) {
		return nil, errors.New("mls: signer does not match identity signature key")
	}
	if cfg.KeyPackageLifetime <= 0 {
		cfg.KeyPackageLifetime = DefaultKeyPackageLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{cfg: &cfg}, nil
}

func (c *Config) timestamp() *uint64 {
	t := uint64(c.Now().Unix())
	return &t
}

// KeyPackageRef returns the reference under which a key package is stored
// and addressed in a Welcome.
func KeyPackageRef(kp *wire.KeyPackage) ([]byte, error) {
	raw, err := codec.Marshal(kp)
	if err != nil {
		return nil, err
	}
	return crypto.RefHash(keyPackageRefLabel, raw), nil
}

// GenerateKeyPackage creates a key package for the engine's identity and
// stores its private keys.
func (e *Engine) GenerateKeyPackage() (*wire.MLSMessage, error) {
	const op = "generate key package"

	initPriv, initPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	leafPriv, leafPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.ZeroAll(initPriv[:], leafPriv[:])

	leaf, err := signLeaf(e.cfg.Signer, e.cfg.Identity, leafPub[:])
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	kp := &wire.KeyPackage{
		Version:     wire.MLS10,
		CipherSuite: CipherSuite,
		InitKey:     initPub[:],
		LeafNode:    *leaf,
		NotAfter:    uint64(e.cfg.Now().Add(e.cfg.KeyPackageLifetime).Unix()),
	}
	tbs, err := marshalWith(kp.MarshalTBS)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	kp.Signature = crypto.SignWithLabel(e.cfg.Signer, "KeyPackageTBS", tbs)

	msg := &wire.MLSMessage{Version: wire.MLS10, WireFormat: wire.WireFormatKeyPackage, KeyPackage: kp}
	raw, err := wire.Encode(msg)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	ref, err := KeyPackageRef(kp)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	data := types.KeyPackageData{
		KeyPackageBytes:   raw,
		InitKeySecret:     append([]byte(nil), initPriv[:]...),
		LeafNodeKeySecret: append([]byte(nil), leafPriv[:]...),
		Expiration:        kp.NotAfter,
	}
	if err := e.cfg.KeyPackages.Insert(ref, data); err != nil {
		return nil, types.E(types.KindStorage, op, err)
	}
	return msg, nil
}

// CreateGroup starts a group at epoch 0 with the local member at index 0.
// A nil groupID is replaced with a random UUID.
func (e *Engine) CreateGroup(groupID []byte, extensions types.ExtensionList) (interfaces.GroupEngine, error) {
	const op = "create group"

	if groupID == nil {
		id := uuid.New()
		groupID = id[:]
	}
	if ext, ok := extensions.Find(wire.ExtensionTypeRatchetTree); ok {
		return nil, types.E(types.KindUsage, op, fmt.Errorf("extension %d is managed by the engine", ext.Type))
	}
	if ext, ok := extensions.Find(wire.ExtensionTypeExternalSenders); ok {
		senders, err := wire.DecodeExternalSenders(ext.Data)
		if err != nil {
			return nil, types.E(types.KindCodec, op, err)
		}
		for _, s := range senders {
			id := types.SigningIdentity{SignatureKey: s.SignatureKey, Credential: s.Credential}
			if err := e.cfg.Provider.ValidateExternalSender(id, e.cfg.timestamp(), extensions); err != nil {
				return nil, types.E(types.KindValidation, op, err)
			}
		}
	}

	leafPriv, leafPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	leaf, err := signLeaf(e.cfg.Signer, e.cfg.Identity, leafPub[:])
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	roster := []*wire.LeafNode{leaf}
	th, err := treeHash(roster)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}

	g := &Group{
		cfg: e.cfg,
		context: wire.GroupContext{
			Version:     wire.MLS10,
			CipherSuite: CipherSuite,
			GroupID:     append([]byte(nil), groupID...),
			TreeHash:    th,
			Extensions:  extensions,
		},
		roster:     roster,
		signer:     e.cfg.Signer,
		leafSecret: append([]byte(nil), leafPriv[:]...),
	}
	memzero.Zero(leafPriv[:])

	if err := g.validateCredentialType(e.cfg.Identity.Credential); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}
	vctx := types.ForNewGroup{CurrentContext: g.Context()}
	if err := e.cfg.Provider.ValidateMember(e.cfg.Identity, e.cfg.timestamp(), vctx); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}

	g.epoch.epochSecret = make([]byte, crypto.HashSize)
	if _, err := rand.Read(g.epoch.epochSecret); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	e.cfg.Logger.Debug("group created", zap.Binary("group_id", groupID))
	return g, nil
}

// LoadGroup restores a group from a snapshot. The record of the snapshot's
// epoch is fetched through loadEpoch.
func (e *Engine) LoadGroup(state []byte, loadEpoch interfaces.EpochLoader) (interfaces.GroupEngine, error) {
	const op = "load group"

	var sn snapshot
	if err := codec.Unmarshal(state, &sn); err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	g := fromSnapshot(e.cfg, &sn)
	if g.status != statusActive {
		return g, nil
	}
	rec, err := loadEpoch(sn.context.Epoch)
	if err != nil {
		return nil, types.E(types.KindStorage, op, err)
	}
	if err := codec.Unmarshal(rec, &g.epoch); err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	return g, nil
}

func fromSnapshot(cfg *Config, sn *snapshot) *Group {
	return &Group{
		cfg:        cfg,
		context:    sn.context,
		roster:     sn.roster,
		index:      sn.index,
		signer:     sn.signer,
		leafSecret: sn.leafSecret,
		interim:    sn.interim,
		status:     sn.status,
		reinit:     sn.reinit,
		proposals:  sn.proposals,
	}
}

func signLeaf(signer types.Ed25519Private, id types.SigningIdentity, encKey []byte) (*wire.LeafNode, error) {
	leaf := &wire.LeafNode{
		EncryptionKey: append([]byte(nil), encKey...),
		SignatureKey:  append([]byte(nil), id.SignatureKey...),
		Credential:    id.Credential,
	}
	tbs, err := marshalWith(leaf.MarshalTBS)
	if err != nil {
		return nil, err
	}
	leaf.Signature = crypto.SignWithLabel(signer, "LeafNodeTBS", tbs)
	return leaf, nil
}
