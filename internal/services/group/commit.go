package group

import (
	"errors"

	"go.uber.org/zap"

	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/protocol/wire"
)

// CommitOutput is everything a local commit produced. The commit has
// already been applied to the session.
type CommitOutput struct {
	CommitMessage *message.Message
	// WelcomeMessage is nil unless the commit added at least one member.
	WelcomeMessage *message.Message
	GroupInfo      *message.Message

	AppliedProposals []types.Proposal
	UnusedProposals  []types.Proposal
	// ConversionErrors lists applied or unused proposals that have no
	// types.Proposal form.
	ConversionErrors []*types.ConversionError
}

// Commit commits every cached proposal that is still valid, or an empty
// update when none are, and advances the epoch by one.
func (g *Group) Commit(authenticatedData []byte) (*CommitOutput, error) {
	return g.commit("commit", interfaces.CommitOptions{AuthenticatedData: authenticatedData})
}

// CommitNewIdentity commits like Commit and rotates the local member's
// signing identity in the same epoch change.
func (g *Group) CommitNewIdentity(signer types.SignatureSecretKey, identity types.SigningIdentity) (*CommitOutput, error) {
	return g.commit("commit new identity", interfaces.CommitOptions{NewSigner: &signer, NewIdentity: &identity})
}

// AddMembers commits an add for every key package. All new members are
// covered by the one Welcome in the output.
func (g *Group) AddMembers(keyPackages []*message.Message) (*CommitOutput, error) {
	const op = "add members"
	if len(keyPackages) == 0 {
		return nil, types.E(types.KindUsage, op, errors.New("no key packages given"))
	}
	opts := interfaces.CommitOptions{}
	for _, kp := range keyPackages {
		if kp.WireFormat() != wire.WireFormatKeyPackage {
			return nil, types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
		}
		opts.Add = append(opts.Add, kp.Wire())
	}
	return g.commit(op, opts)
}

// RemoveMembers commits the removal of the members at the given indexes.
func (g *Group) RemoveMembers(indexes []uint32) (*CommitOutput, error) {
	const op = "remove members"
	if len(indexes) == 0 {
		return nil, types.E(types.KindUsage, op, errors.New("no members given"))
	}
	return g.commit(op, interfaces.CommitOptions{Remove: append([]uint32(nil), indexes...)})
}

func (g *Group) commit(op string, opts interfaces.CommitOptions) (*CommitOutput, error) {
	var out *CommitOutput
	err := g.locked(op, true, func() error {
		return g.swap(func(next interfaces.GroupEngine) error {
			res, err := next.Commit(opts)
			if err != nil {
				return err
			}
			if out, err = commitOutput(res); err != nil {
				return err
			}
			committer, _ := next.MemberAt(next.Index())

			var effect types.CommitEffect = types.NewEpoch{
				AppliedProposals: out.AppliedProposals,
				UnusedProposals:  out.UnusedProposals,
				ConversionErrors: out.ConversionErrors,
			}
			if r := appliedReInit(res.Applied); r != nil {
				effect = reinitEffect(r)
			}
			g.lastCommit = out.CommitMessage
			g.lastEcho = types.CommitMessage{Committer: committer, Effect: effect}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(out.ConversionErrors) > 0 {
		g.logger.Warn("commit has proposals without a public form", zap.Int("count", len(out.ConversionErrors)))
	}
	return out, nil
}

func commitOutput(res *interfaces.CommitResult) (*CommitOutput, error) {
	out := &CommitOutput{}
	var err error
	if out.CommitMessage, err = message.New(res.Commit); err != nil {
		return nil, err
	}
	if res.Welcome != nil {
		if out.WelcomeMessage, err = message.New(res.Welcome); err != nil {
			return nil, err
		}
	}
	if res.GroupInfo != nil {
		if out.GroupInfo, err = message.New(res.GroupInfo); err != nil {
			return nil, err
		}
	}
	var applyErrs, unusedErrs []*types.ConversionError
	out.AppliedProposals, applyErrs = convertProposals(res.Applied)
	out.UnusedProposals, unusedErrs = convertProposals(res.Unused)
	out.ConversionErrors = append(applyErrs, unusedErrs...)
	return out, nil
}

// appliedReInit returns the reinit the local commit applied, if any.
func appliedReInit(applied []interfaces.ProposalInfo) *wire.ReInit {
	for _, p := range applied {
		if p.Proposal.Type == wire.ProposalTypeReInit {
			return p.Proposal.ReInit
		}
	}
	return nil
}

func reinitEffect(r *wire.ReInit) types.ReInit {
	return types.ReInit{
		GroupID:     append([]byte(nil), r.GroupID...),
		CipherSuite: r.CipherSuite,
		Extensions:  append(types.ExtensionList(nil), r.Extensions...),
	}
}
