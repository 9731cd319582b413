package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetThenUnlock(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.False(v.IsConfigured())
	assert.NoError(v.Set("correct horse"))
	assert.True(v.IsConfigured())
	assert.True(v.IsUnlocked())

	v.Lock()
	assert.False(v.IsUnlocked())
	assert.NoError(v.Unlock("correct horse"))
	assert.True(v.IsUnlocked())
}

func TestSetTwiceFails(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("first"))
	assert.Error(v.Set("second"))
}

func TestUnlockWrongPassword(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("correct horse"))
	v.Lock()
	err := v.Unlock("wrong password")
	assert.ErrorIs(err, ErrInvalidPassword)
	assert.False(v.IsUnlocked())
}

func TestSaveReadRoundTrip(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("correct horse"))
	assert.NoError(v.Save("real-debrid", "api-key-123"))

	got, err := v.Read("real-debrid")
	assert.NoError(err)
	assert.Equal("api-key-123", got)

	status := v.StatusFor("real-debrid")
	assert.True(status.Configured)
}

func TestReadWhileLockedFails(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("correct horse"))
	assert.NoError(v.Save("torbox", "tb-key"))
	v.Lock()

	_, err := v.Read("torbox")
	assert.ErrorIs(err, ErrLocked)

	err = v.Save("torbox", "new-key")
	assert.ErrorIs(err, ErrLocked)
}

func TestChangePasswordReencrypts(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("old password"))
	assert.NoError(v.Save("real-debrid", "secret-key"))

	assert.NoError(v.Change("old password", "new password"))

	got, err := v.Read("real-debrid")
	assert.NoError(err)
	assert.Equal("secret-key", got)

	v.Lock()
	assert.Error(v.Unlock("old password"))
	assert.NoError(v.Unlock("new password"))
}

func TestChangeWrongOldPasswordLeavesVaultUnmodified(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("old password"))
	assert.NoError(v.Save("real-debrid", "secret-key"))

	err := v.Change("not the old password", "new password")
	assert.ErrorIs(err, ErrInvalidPassword)

	v.Lock()
	assert.NoError(v.Unlock("old password"))
	got, err := v.Read("real-debrid")
	assert.NoError(err)
	assert.Equal("secret-key", got)
}

func TestExportLoadRoundTrip(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("correct horse"))
	assert.NoError(v.Save("real-debrid", "api-key-123"))

	blob := v.Export()
	restored := Load(blob)
	assert.True(restored.IsConfigured())
	assert.False(restored.IsUnlocked())
	assert.NoError(restored.Unlock("correct horse"))

	got, err := restored.Read("real-debrid")
	assert.NoError(err)
	assert.Equal("api-key-123", got)
}

func TestDeleteRemovesCredential(t *testing.T) {
	assert := require.New(t)
	v := New()
	assert.NoError(v.Set("correct horse"))
	assert.NoError(v.Save("real-debrid", "api-key-123"))
	v.Delete("real-debrid")

	_, err := v.Read("real-debrid")
	assert.Error(err)
	assert.False(v.StatusFor("real-debrid").Configured)
}
