package keypackage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/mls"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/services/identity"
	"mlsgroup/internal/services/keypackage"
	"mlsgroup/internal/store"
)

func newService(t *testing.T) (*keypackage.Service, *store.MemoryStore) {
	t.Helper()
	signer, _, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	s := store.NewMemoryStore(0)
	eng, err := mls.New(mls.Config{
		Signer:      signer,
		Identity:    types.LocalIdentity{Name: []byte("alice"), SigningKey: signer}.SigningIdentity(),
		KeyPackages: s.KeyPackages(),
		Provider:    identity.NewBasicProvider(),
	})
	require.NoError(t, err)
	return keypackage.New(eng, nil), s
}

func TestGenerate_StoresPrivateHalves(t *testing.T) {
	svc, s := newService(t)

	kps, err := svc.Generate(3)
	require.NoError(t, err)
	require.Len(t, kps, 3)
	assert.Equal(t, 3, s.KeyPackages().Len())
	for _, kp := range kps {
		assert.Equal(t, wire.WireFormatKeyPackage, kp.WireFormat())
		ref, err := mls.KeyPackageRef(kp.Wire().KeyPackage)
		require.NoError(t, err)
		data, ok, err := s.KeyPackages().Get(ref)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, kp.Bytes(), data.KeyPackageBytes)
	}
}

func TestGenerate_BatchBounds(t *testing.T) {
	svc, s := newService(t)
	for _, n := range []int{0, -1, keypackage.MaxBatch + 1} {
		_, err := svc.Generate(n)
		require.ErrorIs(t, err, types.ErrUsage)
	}
	assert.Zero(t, s.KeyPackages().Len())
}
