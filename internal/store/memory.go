package store

import (
	"fmt"
	"sort"
	"sync"

	"mlsgroup/internal/domain"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/util/memzero"
)

// MemoryStore keeps group state, key packages and pre-shared keys in process
// memory behind one mutex. It implements domain.GroupStateStorage directly;
// the other two contracts are reached through KeyPackages and PSKs.
//
// Nothing survives the process. Use it for tests and short-lived tools.
type MemoryStore struct {
	mu          sync.Mutex
	groups      map[string]*memoryGroup
	keyPackages map[string]types.KeyPackageData
	psks        map[string][]byte

	// retention caps the epoch records kept per group; zero keeps all.
	retention int
}

type memoryGroup struct {
	state  []byte
	epochs []types.EpochRecord // ascending by ID
	maxID  uint64
	hasMax bool
}

// NewMemoryStore returns an empty store. A positive retention keeps only
// that many of the newest epoch records per group.
func NewMemoryStore(retention int) *MemoryStore {
	return &MemoryStore{
		groups:      make(map[string]*memoryGroup),
		keyPackages: make(map[string]types.KeyPackageData),
		psks:        make(map[string][]byte),
		retention:   retention,
	}
}

// ---------- Group state ----------

func (s *MemoryStore) State(groupID []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[string(groupID)]
	if !ok {
		return nil, false, nil
	}
	return clone(g.state), true, nil
}

func (s *MemoryStore) Epoch(groupID []byte, epochID uint64) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[string(groupID)]
	if !ok {
		return nil, false, nil
	}
	if i := g.find(epochID); i >= 0 {
		return clone(g.epochs[i].Data), true, nil
	}
	return nil, false, nil
}

// Write validates every insert and update before changing anything, so a
// rejected call leaves the group as it was.
func (s *MemoryStore) Write(state types.GroupState, inserts, updates []types.EpochRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, exists := s.groups[string(state.ID)]
	if !exists {
		g = &memoryGroup{}
	}
	fresh := make(map[uint64]bool, len(inserts))
	for _, r := range inserts {
		if g.find(r.ID) >= 0 || fresh[r.ID] {
			return fmt.Errorf("insert epoch %d: %w", r.ID, types.ErrAlreadyExists)
		}
		fresh[r.ID] = true
	}
	for _, r := range updates {
		if g.find(r.ID) < 0 && !fresh[r.ID] {
			return fmt.Errorf("update epoch %d: %w", r.ID, types.ErrNotFound)
		}
	}

	g.state = clone(state.Data)
	for _, r := range inserts {
		g.epochs = append(g.epochs, types.EpochRecord{ID: r.ID, Data: clone(r.Data)})
		if !g.hasMax || r.ID > g.maxID {
			g.maxID, g.hasMax = r.ID, true
		}
	}
	sort.Slice(g.epochs, func(i, j int) bool { return g.epochs[i].ID < g.epochs[j].ID })
	for _, r := range updates {
		i := g.find(r.ID)
		memzero.Zero(g.epochs[i].Data)
		g.epochs[i].Data = clone(r.Data)
	}
	if s.retention > 0 && len(g.epochs) > s.retention {
		drop := len(g.epochs) - s.retention
		for i := 0; i < drop; i++ {
			memzero.Zero(g.epochs[i].Data)
		}
		g.epochs = append([]types.EpochRecord(nil), g.epochs[drop:]...)
	}
	s.groups[string(state.ID)] = g
	return nil
}

func (s *MemoryStore) MaxEpochID(groupID []byte) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[string(groupID)]
	if !ok || !g.hasMax {
		return 0, false, nil
	}
	return g.maxID, true, nil
}

func (g *memoryGroup) find(id uint64) int {
	for i := range g.epochs {
		if g.epochs[i].ID == id {
			return i
		}
	}
	return -1
}

// ---------- Key packages ----------

// KeyPackages returns the store's domain.KeyPackageStorage view.
func (s *MemoryStore) KeyPackages() *MemoryKeyPackages { return &MemoryKeyPackages{s: s} }

// MemoryKeyPackages is the key package view of a MemoryStore.
type MemoryKeyPackages struct{ s *MemoryStore }

func (k *MemoryKeyPackages) Insert(id []byte, pkg types.KeyPackageData) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if _, ok := k.s.keyPackages[string(id)]; ok {
		return fmt.Errorf("key package %x: %w", id, types.ErrAlreadyExists)
	}
	k.s.keyPackages[string(id)] = pkg.Clone()
	return nil
}

func (k *MemoryKeyPackages) Get(id []byte) (types.KeyPackageData, bool, error) {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	pkg, ok := k.s.keyPackages[string(id)]
	if !ok {
		return types.KeyPackageData{}, false, nil
	}
	return pkg.Clone(), true, nil
}

// Delete erases the private keys before dropping the entry. Deleting an
// unknown id is not an error.
func (k *MemoryKeyPackages) Delete(id []byte) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if pkg, ok := k.s.keyPackages[string(id)]; ok {
		pkg.Erase()
		delete(k.s.keyPackages, string(id))
	}
	return nil
}

// Len reports how many key packages are stored.
func (k *MemoryKeyPackages) Len() int {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	return len(k.s.keyPackages)
}

// ---------- Pre-shared keys ----------

// PSKs returns the store's domain.PreSharedKeyStorage view.
func (s *MemoryStore) PSKs() *MemoryPSKs { return &MemoryPSKs{s: s} }

// MemoryPSKs is the pre-shared key view of a MemoryStore. Keys are indexed
// by canonical id (see types.EncodePSKID).
type MemoryPSKs struct{ s *MemoryStore }

// Insert stores psk under the canonical encoding of rawID.
func (p *MemoryPSKs) Insert(rawID, psk []byte) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	id := string(types.EncodePSKID(rawID))
	if old, ok := p.s.psks[id]; ok {
		memzero.Zero(old)
	}
	p.s.psks[id] = clone(psk)
}

func (p *MemoryPSKs) Get(id []byte) ([]byte, bool, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	psk, ok := p.s.psks[string(id)]
	if !ok {
		return nil, false, nil
	}
	return clone(psk), true, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Compile-time assertions that the memory views implement the storage contracts.
var (
	_ domain.GroupStateStorage   = (*MemoryStore)(nil)
	_ domain.KeyPackageStorage   = (*MemoryKeyPackages)(nil)
	_ domain.PreSharedKeyStorage = (*MemoryPSKs)(nil)
)
