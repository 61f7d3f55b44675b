package interfaces

import domaintypes "mlsgroup/internal/domain/types"

// IdentityStore persists the local signing identity.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.LocalIdentity) error
	LoadIdentity(passphrase string) (domaintypes.LocalIdentity, error)
}

// GroupStateStorage persists group snapshots and per-epoch records.
//
// Write must be atomic: the snapshot overwrite, every insert and every update
// take effect together or not at all. Inserted ids must be new for the group
// and updated ids must already exist.
type GroupStateStorage interface {
	// State returns the latest snapshot for groupID.
	State(groupID []byte) (data []byte, ok bool, err error)
	// Epoch returns the record epochID of groupID.
	Epoch(groupID []byte, epochID uint64) (data []byte, ok bool, err error)
	Write(state domaintypes.GroupState, inserts, updates []domaintypes.EpochRecord) error
	// MaxEpochID returns the highest epoch id ever inserted for groupID.
	MaxEpochID(groupID []byte) (id uint64, ok bool, err error)
}

// KeyPackageStorage keeps the private half of published key packages.
// Delete must erase the secrets so a later Get cannot recover them.
type KeyPackageStorage interface {
	Insert(id []byte, pkg domaintypes.KeyPackageData) error
	Get(id []byte) (pkg domaintypes.KeyPackageData, ok bool, err error)
	Delete(id []byte) error
}

// PreSharedKeyStorage resolves external pre-shared keys by canonical id.
type PreSharedKeyStorage interface {
	Get(id []byte) (psk []byte, ok bool, err error)
}
