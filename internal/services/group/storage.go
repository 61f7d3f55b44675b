package group

import (
	"go.uber.org/zap"

	"mlsgroup/internal/domain/types"
)

// WriteToStorage persists the group snapshot and the record of the current
// epoch in one Write call. The record is inserted the first time an epoch
// is written and updated after that. Nothing is written implicitly; call
// this after every change that must survive a restart.
func (g *Group) WriteToStorage() error {
	const op = "write to storage"
	return g.locked(op, true, func() error {
		state, rec, err := g.engine.Snapshot()
		if err != nil {
			return err
		}
		maxID, ok, err := g.storage.MaxEpochID(g.groupID)
		if err != nil {
			return types.E(types.KindStorage, op, err)
		}

		var inserts, updates []types.EpochRecord
		if ok && maxID >= rec.ID {
			updates = []types.EpochRecord{rec}
		} else {
			inserts = []types.EpochRecord{rec}
		}
		if err := g.storage.Write(types.GroupState{ID: g.groupID, Data: state}, inserts, updates); err != nil {
			return types.E(types.KindStorage, op, err)
		}
		g.logger.Debug("group state written",
			zap.Uint64("epoch", rec.ID),
			zap.Bool("inserted", len(inserts) > 0))
		return nil
	})
}
