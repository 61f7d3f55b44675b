package group

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/metrics"
)

// Group is one participant's session in one group. A *Group may be shared
// freely; every method holds the session mutex for its whole duration.
//
// Mutating methods run against a clone of the engine state and keep it only
// on success, so a failed call leaves the session as it was. A panic in an
// injected collaborator poisons the session: later mutating calls fail with
// types.ErrSessionPoisoned and the caller must load the group again.
type Group struct {
	mu sync.Mutex

	groupID []byte
	engine  interfaces.GroupEngine
	storage interfaces.GroupStateStorage

	// lastCommit is the commit this session created most recently, kept so
	// that its echo from the delivery service can be recognized.
	lastCommit *message.Message
	lastEcho   types.ReceivedMessage

	poisoned bool

	logger  *zap.Logger
	metrics *metrics.GroupMetrics
}

// Option configures a Group.
type Option func(*Group)

// WithLogger sets the session logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(g *Group) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics makes the session report to m.
func WithMetrics(m *metrics.GroupMetrics) Option {
	return func(g *Group) { g.metrics = m }
}

// New wraps engine state in a session that persists through storage.
func New(engine interfaces.GroupEngine, storage interfaces.GroupStateStorage, opts ...Option) *Group {
	g := &Group{
		groupID: engine.Context().GroupID,
		engine:  engine,
		storage: storage,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	g.logger = g.logger.With(zap.String("group_id", hex.EncodeToString(g.groupID)))
	return g
}

// locked runs f under the session mutex. Untyped errors become protocol
// errors; a panic poisons the session.
func (g *Group) locked(op string, mutates bool, f func() error) (err error) {
	start := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		g.metrics.ObserveOperation(op, kindLabel(err), time.Since(start))
	}()

	if mutates && g.poisoned {
		return types.E(types.KindCallback, op, types.ErrSessionPoisoned)
	}
	defer func() {
		if r := recover(); r != nil {
			g.poisoned = true
			g.metrics.IncPoisoned()
			g.logger.Error("group session poisoned", zap.String("op", op), zap.Any("panic", r))
			err = types.E(types.KindCallback, op, fmt.Errorf("%w: panic: %v", types.ErrSessionPoisoned, r))
		}
	}()
	if err := f(); err != nil {
		return types.E(types.KindProtocol, op, err)
	}
	return nil
}

// swap runs f on a copy of the engine state and adopts the copy only if f
// succeeds. The caller holds g.mu.
func (g *Group) swap(f func(next interfaces.GroupEngine) error) error {
	next, err := g.engine.Clone()
	if err != nil {
		return err
	}
	if err := f(next); err != nil {
		return err
	}
	before := g.engine.Context().Epoch
	g.engine = next
	if after := next.Context().Epoch; after != before {
		g.metrics.IncEpochAdvance()
		g.logger.Debug("epoch advanced", zap.Uint64("from", before), zap.Uint64("to", after))
	}
	return nil
}

func kindLabel(err error) string {
	if err == nil {
		return ""
	}
	if k := types.KindOf(err); k != 0 {
		return k.String()
	}
	return "unknown"
}

// GroupID returns the id of the group. It never changes.
func (g *Group) GroupID() []byte {
	return append([]byte(nil), g.groupID...)
}

// CurrentEpoch returns the epoch of the local view of the group.
func (g *Group) CurrentEpoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Context().Epoch
}

// CurrentMemberIndex returns the local member's leaf index.
func (g *Group) CurrentMemberIndex() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Index()
}

// Members returns the roster ordered by leaf index.
func (g *Group) Members() []types.Member {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Roster()
}

// MemberAtIndex returns the member at leaf index i, if the slot is occupied.
func (g *Group) MemberAtIndex(i uint32) (types.Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.MemberAt(i)
}

// Context returns the agreed parameters of the current epoch.
func (g *Group) Context() types.GroupContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Context()
}

// Active is false once the local member was removed or the group was
// reinitialized.
func (g *Group) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Active()
}

// PendingProposals lists the cached proposals. Proposals that have no
// types.Proposal form are reported in the second result.
func (g *Group) PendingProposals() ([]types.Proposal, []*types.ConversionError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return convertProposals(g.engine.PendingProposals())
}

// ClearProposalCache drops every cached proposal, including the local
// member's own.
func (g *Group) ClearProposalCache() error {
	return g.locked("clear proposal cache", true, func() error {
		g.engine.ClearProposals()
		return nil
	})
}

// ExportSecret derives length bytes bound to label and context from the
// current epoch.
func (g *Group) ExportSecret(label, context []byte, length int) ([]byte, error) {
	var out []byte
	err := g.locked("export secret", false, func() error {
		var err error
		out, err = g.engine.ExportSecret(label, context, length)
		return err
	})
	return out, err
}

// Poisoned reports whether a panic has made the session unusable for
// mutating calls.
func (g *Group) Poisoned() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poisoned
}
