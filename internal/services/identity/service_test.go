package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/services/identity"
	"mlsgroup/internal/store"
)

const strongPass = "Correct-Horse-9"

func TestGenerateIdentity_RoundTrip(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))

	id, fp, err := svc.GenerateIdentity(strongPass, []byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), id.Name)
	assert.NotEmpty(t, fp)

	loaded, err := svc.LoadIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, id, loaded)

	again, err := svc.FingerprintIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, fp, again)

	si := loaded.SigningIdentity()
	assert.Equal(t, types.CredentialTypeBasic, si.Credential.Type)
	assert.Equal(t, []byte("alice"), si.Credential.Identity)
}

func TestGenerateIdentity_WeakPassphrase(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))
	for _, p := range []string{"short1!A", "alllowercase-123", "NoDigitsHere!!"} {
		_, _, err := svc.GenerateIdentity(p, []byte("alice"))
		require.ErrorIs(t, err, identity.ErrWeakPassphrase, p)
	}
}

func TestGenerateIdentity_EmptyName(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))
	_, _, err := svc.GenerateIdentity(strongPass, nil)
	require.ErrorIs(t, err, identity.ErrInvalidName)
}

func TestBasicProvider(t *testing.T) {
	p := identity.NewBasicProvider()
	basic := types.SigningIdentity{SignatureKey: []byte("k"), Credential: types.NewBasicCredential([]byte("bob"))}

	got, err := p.Identity(basic, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("bob"), got)

	other := types.SigningIdentity{Credential: types.Credential{Type: 2, Identity: []byte("x509")}}
	_, err = p.Identity(other, nil)
	require.ErrorIs(t, err, types.ErrMissingBasicCredential)

	ok, err := p.ValidSuccessor(basic, other, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, p.ValidateMember(basic, nil, types.NoValidationContext{}))
	require.NoError(t, p.ValidateExternalSender(basic, nil, nil))
	assert.Equal(t, []types.CredentialType{types.CredentialTypeBasic}, p.SupportedTypes())
}
