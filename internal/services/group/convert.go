package group

import (
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
)

// convertProposals maps engine proposals to types.Proposal. Entries that
// cannot be mapped are returned as conversion errors instead of being
// dropped.
func convertProposals(infos []interfaces.ProposalInfo) ([]types.Proposal, []*types.ConversionError) {
	var (
		out  []types.Proposal
		errs []*types.ConversionError
	)
	for _, info := range infos {
		p, err := convertProposal(info)
		if err != nil {
			errs = append(errs, &types.ConversionError{ProposalType: uint16(info.Proposal.Type), Err: err})
			continue
		}
		out = append(out, p)
	}
	return out, errs
}

func convertProposal(info interfaces.ProposalInfo) (types.Proposal, error) {
	p := info.Proposal
	switch p.Type {
	case wire.ProposalTypeAdd:
		raw, err := wire.Encode(&wire.MLSMessage{
			Version:    wire.MLS10,
			WireFormat: wire.WireFormatKeyPackage,
			KeyPackage: p.KeyPackage,
		})
		if err != nil {
			return nil, err
		}
		return types.AddProposal{KeyPackage: raw, Identity: leafIdentity(&p.KeyPackage.LeafNode)}, nil
	case wire.ProposalTypeUpdate:
		if info.Sender.Type != wire.SenderTypeMember {
			return nil, types.ErrUnsupportedSender
		}
		return types.UpdateProposal{NewIdentity: leafIdentity(p.LeafNode), SenderIndex: info.Sender.Index}, nil
	case wire.ProposalTypeRemove:
		return types.RemoveProposal{Index: p.Removed}, nil
	case wire.ProposalTypePSK:
		return types.PreSharedKeyProposal{PSKID: append([]byte(nil), p.PSK.ID...)}, nil
	case wire.ProposalTypeReInit:
		return types.ReInitProposal{
			GroupID:     append([]byte(nil), p.ReInit.GroupID...),
			CipherSuite: p.ReInit.CipherSuite,
			Extensions:  append(types.ExtensionList(nil), p.ReInit.Extensions...),
		}, nil
	default:
		return nil, types.ErrUnsupportedProposal
	}
}

func leafIdentity(leaf *wire.LeafNode) types.SigningIdentity {
	return types.SigningIdentity{
		SignatureKey: append([]byte(nil), leaf.SignatureKey...),
		Credential: types.Credential{
			Type:     leaf.Credential.Type,
			Identity: append([]byte(nil), leaf.Credential.Identity...),
		},
	}
}
