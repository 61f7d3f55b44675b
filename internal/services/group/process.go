package group

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/protocol/wire"
)

// EncryptApplicationMessage encrypts plaintext for the current epoch.
//
// While the local member has a proposal of its own in the cache the session
// is dirty and the call fails with types.ErrCommitRequired. Setting
// allowSelfProposals lifts that check for callers that staple the pending
// proposal into authenticatedData.
func (g *Group) EncryptApplicationMessage(plaintext, authenticatedData []byte, allowSelfProposals bool) (*message.Message, error) {
	const op = "encrypt application message"
	var out *message.Message
	err := g.locked(op, true, func() error {
		if !allowSelfProposals && g.engine.HasOwnProposals() {
			return types.E(types.KindProtocol, op, types.ErrCommitRequired)
		}
		return g.swap(func(next interfaces.GroupEngine) error {
			m, err := next.EncryptApplication(plaintext, authenticatedData)
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

// ProcessIncomingMessage applies one message from the delivery service.
//
// Framed messages must be addressed to this group and its current epoch.
// Proposals are cached, commits advance the epoch, and Welcome, GroupInfo
// and KeyPackage messages are only validated. The echo of the commit this
// session created last is recognized and reported without being applied a
// second time.
func (g *Group) ProcessIncomingMessage(msg *message.Message) (types.ReceivedMessage, error) {
	const op = "process incoming message"
	var out types.ReceivedMessage
	err := g.locked(op, true, func() error {
		if msg == nil {
			return types.E(types.KindUsage, op, errors.New("nil message"))
		}
		if g.lastCommit != nil && msg.Equal(g.lastCommit) {
			out = g.lastEcho
			g.lastCommit, g.lastEcho = nil, nil
			return nil
		}
		if err := g.checkAddressing(msg); err != nil {
			return types.E(types.KindProtocol, op, err)
		}

		switch msg.WireFormat() {
		case wire.WireFormatWelcome:
			out = types.WelcomeMessage{}
			return g.engine.ValidateControl(msg.Wire())
		case wire.WireFormatGroupInfo:
			out = types.GroupInfoMessage{}
			return g.engine.ValidateControl(msg.Wire())
		case wire.WireFormatKeyPackage:
			out = types.KeyPackageMessage{}
			return g.engine.ValidateControl(msg.Wire())
		case wire.WireFormatPublicMessage:
			if s := msg.Wire().Public.Content.Sender; s.Type != wire.SenderTypeMember {
				return types.E(types.KindProtocol, op, fmt.Errorf("%w: %s", types.ErrUnsupportedSender, s.Type))
			}
		}

		return g.swap(func(next interfaces.GroupEngine) error {
			p, err := next.Process(msg.Wire())
			if err != nil {
				return err
			}
			out, err = g.received(p)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	g.metrics.IncReceived(variantLabel(out))
	return out, nil
}

// checkAddressing rejects framed messages for another group or epoch.
func (g *Group) checkAddressing(msg *message.Message) error {
	if id, ok := msg.GroupID(); ok && !bytes.Equal(id, g.groupID) {
		return types.ErrWrongGroup
	}
	if epoch, ok := msg.Epoch(); ok {
		if current := g.engine.Context().Epoch; epoch != current {
			return fmt.Errorf("%w: got %d, current %d", types.ErrWrongEpoch, epoch, current)
		}
	}
	return nil
}

// received converts the engine's result. The caller holds g.mu.
func (g *Group) received(p *interfaces.Processed) (types.ReceivedMessage, error) {
	switch p.ContentType {
	case wire.ContentTypeApplication:
		return types.ApplicationMessage{
			Sender:            p.Sender,
			Data:              p.Application,
			AuthenticatedData: p.AuthenticatedData,
		}, nil
	case wire.ContentTypeProposal:
		prop, err := convertProposal(*p.Proposal)
		if err != nil {
			return nil, &types.ConversionError{ProposalType: uint16(p.Proposal.Proposal.Type), Err: err}
		}
		return types.ProposalMessage{
			Sender:            p.Sender,
			Proposal:          prop,
			AuthenticatedData: p.AuthenticatedData,
		}, nil
	case wire.ContentTypeCommit:
		g.lastCommit, g.lastEcho = nil, nil
		return types.CommitMessage{Committer: p.Sender, Effect: g.commitEffect(p.Commit)}, nil
	default:
		return nil, fmt.Errorf("%w: content type %s", types.ErrUnexpectedMessageFormat, p.ContentType)
	}
}

func (g *Group) commitEffect(info *interfaces.CommitInfo) types.CommitEffect {
	switch {
	case info.Removed:
		g.logger.Info("removed from group")
		return types.Removed{}
	case info.ReInit != nil:
		g.logger.Info("group reinitialized", zap.Binary("new_group_id", info.ReInit.GroupID))
		return reinitEffect(info.ReInit)
	}
	applied, applyErrs := convertProposals(info.Applied)
	unused, unusedErrs := convertProposals(info.Unused)
	return types.NewEpoch{
		AppliedProposals: applied,
		UnusedProposals:  unused,
		ConversionErrors: append(applyErrs, unusedErrs...),
	}
}

func variantLabel(m types.ReceivedMessage) string {
	switch m.(type) {
	case types.ApplicationMessage:
		return "application"
	case types.CommitMessage:
		return "commit"
	case types.ProposalMessage:
		return "proposal"
	case types.GroupInfoMessage:
		return "group_info"
	case types.WelcomeMessage:
		return "welcome"
	case types.KeyPackageMessage:
		return "key_package"
	default:
		return "unknown"
	}
}
