package client_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/protocol/mls"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/services/client"
	"mlsgroup/internal/services/group"
	"mlsgroup/internal/services/identity"
	"mlsgroup/internal/store"
)

func newClient(t *testing.T, name string) (*client.Client, *store.MemoryStore) {
	t.Helper()
	signer, _, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	s := store.NewMemoryStore(0)
	eng, err := mls.New(mls.Config{
		Signer:      signer,
		Identity:    types.LocalIdentity{Name: []byte(name), SigningKey: signer}.SigningIdentity(),
		KeyPackages: s.KeyPackages(),
		PSKs:        s.PSKs(),
		Provider:    identity.NewBasicProvider(),
	})
	require.NoError(t, err)
	c, err := client.New(client.Config{Engine: eng, Storage: s, CacheSize: 4})
	require.NoError(t, err)
	return c, s
}

func TestCreateGroup_GeneratesID(t *testing.T) {
	c, _ := newClient(t, "alice")

	a, err := c.CreateGroup(nil, nil)
	require.NoError(t, err)
	b, err := c.CreateGroup(nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.GroupID(), b.GroupID())

	named, err := c.CreateGroup([]byte("team"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("team"), named.GroupID())
}

func TestJoinGroup(t *testing.T) {
	alice, _ := newClient(t, "alice")
	bob, bobStore := newClient(t, "bob")

	ga, err := alice.CreateGroup(nil, nil)
	require.NoError(t, err)
	kp, err := bob.GenerateKeyPackage()
	require.NoError(t, err)
	out, err := ga.AddMembers([]*message.Message{kp})
	require.NoError(t, err)

	welcome, err := message.Parse(out.WelcomeMessage.Bytes())
	require.NoError(t, err)
	gb, _, err := bob.JoinGroup(welcome)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), gb.CurrentMemberIndex())
	assert.Zero(t, bobStore.KeyPackages().Len())

	// the key package is gone, so the same welcome cannot be joined twice.
	_, _, err = bob.JoinGroup(welcome)
	require.ErrorIs(t, err, types.ErrProtocol)

	_, _, err = bob.JoinGroup(kp)
	require.ErrorIs(t, err, types.ErrUnexpectedMessageFormat)
}

func TestLoadGroup_NotFound(t *testing.T) {
	c, _ := newClient(t, "alice")
	_, err := c.LoadGroup([]byte("nope"))
	require.ErrorIs(t, err, types.ErrStorage)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestLoadGroup_RestoresFromStorage(t *testing.T) {
	c, s := newClient(t, "alice")
	g, err := c.CreateGroup(nil, nil)
	require.NoError(t, err)
	_, err = g.Commit(nil)
	require.NoError(t, err)
	require.NoError(t, g.WriteToStorage())
	want, err := g.ExportSecret([]byte("l"), nil, 16)
	require.NoError(t, err)

	loaded, err := c.LoadGroup(g.GroupID())
	require.NoError(t, err)
	assert.NotSame(t, g, loaded)
	assert.Equal(t, uint64(1), loaded.CurrentEpoch())
	got, err := loaded.ExportSecret([]byte("l"), nil, 16)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cached, err := c.LoadGroup(g.GroupID())
	require.NoError(t, err)
	assert.Same(t, loaded, cached)

	c.Close(g.GroupID())
	_, ok, err := s.State(g.GroupID())
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := c.LoadGroup(g.GroupID())
	require.NoError(t, err)
	assert.NotSame(t, loaded, reloaded)
}

func TestLoadGroup_UnsavedGroupNotFound(t *testing.T) {
	c, s := newClient(t, "alice")
	g, err := c.CreateGroup(nil, nil)
	require.NoError(t, err)
	_, err = g.Commit(nil)
	require.NoError(t, err)

	_, ok, err := s.State(g.GroupID())
	require.NoError(t, err)
	require.False(t, ok)

	_, err = c.LoadGroup(g.GroupID())
	require.ErrorIs(t, err, types.ErrStorage)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestLoadGroup_StaleHandleRestored(t *testing.T) {
	c, _ := newClient(t, "alice")
	g, err := c.CreateGroup(nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.WriteToStorage())

	loaded, err := c.LoadGroup(g.GroupID())
	require.NoError(t, err)
	_, err = loaded.Commit(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.CurrentEpoch())

	// epoch 1 was never written, so the cached handle is ahead of storage.
	again, err := c.LoadGroup(g.GroupID())
	require.NoError(t, err)
	assert.NotSame(t, loaded, again)
	assert.Zero(t, again.CurrentEpoch())

	require.NoError(t, loaded.WriteToStorage())
	latest, err := c.LoadGroup(g.GroupID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), latest.CurrentEpoch())
}

func TestGenerateKeyPackages(t *testing.T) {
	c, s := newClient(t, "alice")

	kps, err := c.GenerateKeyPackages(3)
	require.NoError(t, err)
	require.Len(t, kps, 3)
	for _, kp := range kps {
		assert.Equal(t, wire.WireFormatKeyPackage, kp.WireFormat())
	}
	assert.Equal(t, 3, s.KeyPackages().Len())

	_, err = c.GenerateKeyPackages(0)
	require.ErrorIs(t, err, types.ErrUsage)
	assert.Equal(t, 3, s.KeyPackages().Len())
}

func TestLoadGroup_ConcurrentCallersShareHandle(t *testing.T) {
	c, _ := newClient(t, "alice")
	g, err := c.CreateGroup(nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.WriteToStorage())
	c.Close(g.GroupID())

	const n = 8
	handles := make([]*group.Group, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.LoadGroup(g.GroupID())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Same(t, handles[0], handles[i])
	}
}
