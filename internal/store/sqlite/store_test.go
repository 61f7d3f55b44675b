package sqlite_test

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/store/sqlite"
)

var gid = []byte("group-1")

func open(t *testing.T, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "groups.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWrite_InsertThenUpdate(t *testing.T) {
	s := open(t)

	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s1")},
		[]types.EpochRecord{{ID: 5, Data: []byte("d")}}, nil))
	got, ok, err := s.Epoch(gid, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("d"), got)
	maxID, ok, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), maxID)

	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s2")},
		nil, []types.EpochRecord{{ID: 5, Data: []byte("d2")}}))
	got, _, err = s.Epoch(gid, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("d2"), got)
	maxID, _, err = s.MaxEpochID(gid)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), maxID)

	state, ok, err := s.State(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("s2"), state)
}

func TestWrite_UnknownGroup(t *testing.T) {
	s := open(t)
	_, ok, err := s.State(gid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.MaxEpochID(gid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Epoch(gid, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWrite_IsAtomic(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s1")},
		[]types.EpochRecord{{ID: 1, Data: []byte("one")}}, nil))

	err := s.Write(types.GroupState{ID: gid, Data: []byte("s2")},
		[]types.EpochRecord{{ID: 2, Data: []byte("two")}, {ID: 1, Data: []byte("dup")}}, nil)
	require.ErrorIs(t, err, types.ErrAlreadyExists)

	err = s.Write(types.GroupState{ID: gid, Data: []byte("s3")},
		[]types.EpochRecord{{ID: 3, Data: []byte("three")}}, []types.EpochRecord{{ID: 9, Data: []byte("x")}})
	require.ErrorIs(t, err, types.ErrNotFound)

	state, _, err := s.State(gid)
	require.NoError(t, err)
	assert.Equal(t, []byte("s1"), state)
	_, ok, err := s.Epoch(gid, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	maxID, _, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), maxID)
}

func TestWrite_Retention(t *testing.T) {
	s := open(t, sqlite.WithRetention(2))
	for i := uint64(0); i < 4; i++ {
		require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s")},
			[]types.EpochRecord{{ID: i, Data: []byte{byte(i)}}}, nil))
	}
	for i, want := range []bool{false, false, true, true} {
		_, ok, err := s.Epoch(gid, uint64(i))
		require.NoError(t, err)
		assert.Equal(t, want, ok, "epoch %d", i)
	}
	maxID, _, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), maxID)
}

func TestKeyPackages_InsertGetDelete(t *testing.T) {
	kps := open(t).KeyPackages()
	pkg := types.KeyPackageData{
		KeyPackageBytes:   []byte("kp"),
		InitKeySecret:     []byte("init"),
		LeafNodeKeySecret: []byte("leaf"),
		Expiration:        42,
	}
	require.NoError(t, kps.Insert([]byte("ref"), pkg))
	require.ErrorIs(t, kps.Insert([]byte("ref"), pkg), types.ErrAlreadyExists)

	got, ok, err := kps.Get([]byte("ref"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pkg, got)

	require.NoError(t, kps.Delete([]byte("ref")))
	_, ok, err = kps.Get([]byte("ref"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, kps.Delete([]byte("ref")))
}

func TestKeyPackages_DeleteExpired(t *testing.T) {
	kps := open(t).KeyPackages()
	now := time.Unix(1000, 0)
	for id, exp := range map[string]uint64{"old": 999, "new": 1001} {
		require.NoError(t, kps.Insert([]byte(id), types.KeyPackageData{
			KeyPackageBytes: []byte(id), InitKeySecret: []byte("i"), LeafNodeKeySecret: []byte("l"), Expiration: exp,
		}))
	}
	n, err := kps.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := kps.Get([]byte("new"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPSKs_CanonicalID(t *testing.T) {
	psks := open(t).PSKs()
	require.NoError(t, psks.Insert([]byte("shared"), []byte("secret")))

	got, ok, err := psks.Get(types.EncodePSKID([]byte("shared")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), got)

	_, ok, err = psks.Get([]byte("shared"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.db")
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s")},
		[]types.EpochRecord{{ID: 0, Data: []byte("e")}}, nil))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path)
	require.NoError(t, err)
	defer s.Close()
	maxID, ok, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, maxID)
}

func TestWrite_EpochIDOutOfRange(t *testing.T) {
	s := open(t, sqlite.WithTimeout(time.Second))
	require.NoError(t, s.Write(types.GroupState{ID: gid, Data: []byte("s")},
		[]types.EpochRecord{{ID: 7, Data: []byte("d")}}, nil))

	err := s.Write(types.GroupState{ID: gid, Data: []byte("s2")},
		[]types.EpochRecord{{ID: math.MaxInt64 + 1, Data: []byte("x")}}, nil)
	require.Error(t, err)

	// nothing changed, and the max epoch did not wrap.
	state, _, err := s.State(gid)
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), state)
	maxID, ok, err := s.MaxEpochID(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), maxID)

	_, ok, err = s.Epoch(gid, math.MaxUint64)
	require.NoError(t, err)
	assert.False(t, ok)
}
