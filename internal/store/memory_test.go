package store_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/store"
)

var gid = []byte("group-1")

func TestMemory_WriteInsertThenUpdate(t *testing.T) {
	s := store.NewMemoryStore(0)
	d, d2 := []byte("epoch-5"), []byte("epoch-5-updated")

	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s1")},
		[]types.EpochRecord{{ID: 5, Data: d}}, nil))

	got, ok, err := s.Epoch(gid, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d, got)
	max, ok, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), max)

	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s2")},
		nil, []types.EpochRecord{{ID: 5, Data: d2}}))

	got, ok, err = s.Epoch(gid, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d2, got)
	max, _, err = s.MaxEpochID(gid)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), max)

	state, ok, err := s.State(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("s2"), state)
}

func TestMemory_UnknownGroup(t *testing.T) {
	s := store.NewMemoryStore(0)

	_, ok, err := s.State(gid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Epoch(gid, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.MaxEpochID(gid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_EpochZeroCountsAsInserted(t *testing.T) {
	s := store.NewMemoryStore(0)
	require.NoError(t, s.Write(types.GroupState{ID: gid}, []types.EpochRecord{{ID: 0, Data: []byte("e0")}}, nil))

	max, ok, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, max)
}

func TestMemory_WriteIsAllOrNothing(t *testing.T) {
	s := store.NewMemoryStore(0)
	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s1")},
		[]types.EpochRecord{{ID: 1, Data: []byte("e1")}}, nil))

	err := s.Write(types.GroupState{ID: gid, Data: []byte("s2")},
		[]types.EpochRecord{{ID: 2, Data: []byte("e2")}},
		[]types.EpochRecord{{ID: 9, Data: []byte("missing")}})
	require.ErrorIs(t, err, types.ErrNotFound)

	state, _, _ := s.State(gid)
	assert.Equal(t, []byte("s1"), state)
	_, ok, _ := s.Epoch(gid, 2)
	assert.False(t, ok, "insert from a rejected write must not be visible")

	err = s.Write(types.GroupState{ID: gid, Data: []byte("s3")},
		[]types.EpochRecord{{ID: 1, Data: []byte("again")}}, nil)
	require.ErrorIs(t, err, types.ErrAlreadyExists)
	got, _, _ := s.Epoch(gid, 1)
	assert.Equal(t, []byte("e1"), got)
}

func TestMemory_Retention(t *testing.T) {
	s := store.NewMemoryStore(2)
	for id := uint64(0); id < 4; id++ {
		require.NoError(t, s.Write(types.GroupState{ID: gid},
			[]types.EpochRecord{{ID: id, Data: []byte{byte(id)}}}, nil))
	}
	_, ok, _ := s.Epoch(gid, 1)
	assert.False(t, ok)
	_, ok, _ = s.Epoch(gid, 3)
	assert.True(t, ok)
	max, _, _ := s.MaxEpochID(gid)
	assert.Equal(t, uint64(3), max)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore(0)
	data := []byte("epoch")
	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s")},
		[]types.EpochRecord{{ID: 1, Data: data}}, nil))
	data[0] = 'X'

	got, _, _ := s.Epoch(gid, 1)
	assert.Equal(t, []byte("epoch"), got)
	got[0] = 'Y'
	again, _, _ := s.Epoch(gid, 1)
	assert.Equal(t, []byte("epoch"), again)
}

func TestKeyPackages_InsertGetDelete(t *testing.T) {
	kps := store.NewMemoryStore(0).KeyPackages()
	pkg := types.KeyPackageData{
		KeyPackageBytes:   []byte("kp"),
		InitKeySecret:     bytes.Repeat([]byte{1}, 32),
		LeafNodeKeySecret: bytes.Repeat([]byte{2}, 32),
		Expiration:        100,
	}
	require.NoError(t, kps.Insert([]byte("ref"), pkg))
	require.ErrorIs(t, kps.Insert([]byte("ref"), pkg), types.ErrAlreadyExists)

	got, ok, err := kps.Get([]byte("ref"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pkg, got)

	got.Erase()
	again, _, _ := kps.Get([]byte("ref"))
	assert.Equal(t, pkg.InitKeySecret, again.InitKeySecret, "erasing a returned copy must not touch the store")

	require.NoError(t, kps.Delete([]byte("ref")))
	_, ok, err = kps.Get([]byte("ref"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, kps.Len())
	require.NoError(t, kps.Delete([]byte("ref")))
}

func TestPSKs_CanonicalID(t *testing.T) {
	psks := store.NewMemoryStore(0).PSKs()
	psks.Insert([]byte("team"), []byte("secret"))

	_, ok, err := psks.Get([]byte("team"))
	require.NoError(t, err)
	assert.False(t, ok, "keys are indexed by canonical id only")

	got, ok, err := psks.Get(types.EncodePSKID([]byte("team")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), got)
}

func TestIdentity_SaveLoad_OK(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir())
	id := types.LocalIdentity{Name: []byte("alice"), SigningKey: types.Ed25519Private{4, 5, 6}}

	require.NoError(t, ids.SaveIdentity("pass", id))
	got, err := ids.LoadIdentity("pass")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestIdentity_WrongPassphrase_Fails(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir())
	require.NoError(t, ids.SaveIdentity("correct", types.LocalIdentity{Name: []byte("bob")}))

	_, err := ids.LoadIdentity("wrong")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestIdentity_Missing(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir())
	_, err := ids.LoadIdentity("pass")
	require.True(t, errors.Is(err, types.ErrNotFound))
}
