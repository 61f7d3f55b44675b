package types

import "mlsgroup/internal/protocol/wire"

type (
	// CipherSuite identifies the algorithm set a group runs under.
	CipherSuite = wire.CipherSuite
	// ProtocolVersion identifies the protocol revision.
	ProtocolVersion = wire.ProtocolVersion
	// Extension is an opaque typed extension body.
	Extension = wire.Extension
	// ExtensionType tags an extension body.
	ExtensionType = wire.ExtensionType
	// ExtensionList is an ordered extension list with unique types.
	ExtensionList = wire.Extensions
)

// GroupContext summarises the agreed state of one epoch.
type GroupContext struct {
	ProtocolVersion         ProtocolVersion
	CipherSuite             CipherSuite
	GroupID                 []byte
	Epoch                   uint64
	TreeHash                []byte
	ConfirmedTranscriptHash []byte
	Extensions              ExtensionList
}

// EpochRecord is the per-epoch data a group persists next to its snapshot.
// ID is unique within a group and grows with the epoch.
type EpochRecord struct {
	ID   uint64
	Data []byte
}

// GroupState is the latest full snapshot of one group.
type GroupState struct {
	ID   []byte
	Data []byte
}
