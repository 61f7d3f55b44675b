package group

import (
	"errors"

	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/protocol/wire"
)

// ProposeAdd proposes adding the owner of keyPackage. The proposal is
// cached locally and the epoch does not change.
func (g *Group) ProposeAdd(keyPackage *message.Message, authenticatedData []byte) (*message.Message, error) {
	const op = "propose add"
	if keyPackage == nil || keyPackage.WireFormat() != wire.WireFormatKeyPackage {
		return nil, types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
	}
	return g.propose(op, func(next interfaces.GroupEngine) (*wire.MLSMessage, error) {
		return next.ProposeAdd(keyPackage.Wire(), authenticatedData)
	})
}

// ProposeAddMembers proposes one add per key package. Either every
// proposal is created or none is.
func (g *Group) ProposeAddMembers(keyPackages []*message.Message) ([]*message.Message, error) {
	const op = "propose add members"
	if len(keyPackages) == 0 {
		return nil, types.E(types.KindUsage, op, errors.New("no key packages given"))
	}
	for _, kp := range keyPackages {
		if kp == nil || kp.WireFormat() != wire.WireFormatKeyPackage {
			return nil, types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
		}
	}
	var out []*message.Message
	err := g.locked(op, true, func() error {
		return g.swap(func(next interfaces.GroupEngine) error {
			out = out[:0]
			for _, kp := range keyPackages {
				m, err := next.ProposeAdd(kp.Wire(), nil)
				if err != nil {
					return err
				}
				msg, err := message.New(m)
				if err != nil {
					return err
				}
				out = append(out, msg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProposeUpdate proposes fresh leaf keys under the current identity.
func (g *Group) ProposeUpdate(authenticatedData []byte) (*message.Message, error) {
	return g.proposeUpdate("propose update", nil, nil, authenticatedData)
}

// ProposeUpdateWithIdentity proposes fresh leaf keys and a new signing
// identity. signer must be the secret key of identity.
func (g *Group) ProposeUpdateWithIdentity(signer types.SignatureSecretKey, identity types.SigningIdentity, authenticatedData []byte) (*message.Message, error) {
	return g.proposeUpdate("propose update with identity", &signer, &identity, authenticatedData)
}

// ProposeUpdateOptional is ProposeUpdateWithIdentity when both signer and
// identity are set and ProposeUpdate when neither is. Any other
// combination is a usage error.
func (g *Group) ProposeUpdateOptional(signer *types.SignatureSecretKey, identity *types.SigningIdentity, authenticatedData []byte) (*message.Message, error) {
	const op = "propose update"
	if (signer == nil) != (identity == nil) {
		return nil, types.E(types.KindUsage, op, types.ErrInconsistentOptionalParameters)
	}
	return g.proposeUpdate(op, signer, identity, authenticatedData)
}

func (g *Group) proposeUpdate(op string, signer *types.SignatureSecretKey, identity *types.SigningIdentity, aad []byte) (*message.Message, error) {
	return g.propose(op, func(next interfaces.GroupEngine) (*wire.MLSMessage, error) {
		return next.ProposeUpdate(signer, identity, aad)
	})
}

// ProposeRemove proposes evicting the member at index.
func (g *Group) ProposeRemove(index uint32, authenticatedData []byte) (*message.Message, error) {
	return g.propose("propose remove", func(next interfaces.GroupEngine) (*wire.MLSMessage, error) {
		return next.ProposeRemove(index, authenticatedData)
	})
}

// ProposeExternalPSK proposes mixing the external pre-shared key named by
// rawID into the next epoch. The id is canonicalized with
// types.EncodePSKID; the key must be present in local PSK storage.
func (g *Group) ProposeExternalPSK(rawID, authenticatedData []byte) (*message.Message, error) {
	id := types.EncodePSKID(rawID)
	return g.propose("propose external psk", func(next interfaces.GroupEngine) (*wire.MLSMessage, error) {
		return next.ProposeExternalPSK(id, authenticatedData)
	})
}

// ProposeReInit proposes ending this group in favour of groupID with the
// current cipher suite and the given extensions.
func (g *Group) ProposeReInit(groupID []byte, extensions types.ExtensionList, authenticatedData []byte) (*message.Message, error) {
	return g.propose("propose reinit", func(next interfaces.GroupEngine) (*wire.MLSMessage, error) {
		return next.ProposeReInit(groupID, next.Context().CipherSuite, extensions, authenticatedData)
	})
}

func (g *Group) propose(op string, f func(next interfaces.GroupEngine) (*wire.MLSMessage, error)) (*message.Message, error) {
	var out *message.Message
	err := g.locked(op, true, func() error {
		return g.swap(func(next interfaces.GroupEngine) error {
			m, err := f(next)
			if err != nil {
				return err
			}
			out, err = message.New(m)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
