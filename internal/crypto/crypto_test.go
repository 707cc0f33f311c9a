package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentHashDeterministic(t *testing.T) {
	d := OrderDigest{
		User:           "alice",
		SyntheticID:    "BTC-UP",
		IsBuy:          true,
		Amount:         75_000,
		LimitPriceBps:  5_100,
		MaxSlippageBps: 50,
	}

	assert.Equal(t, CommitmentHash(d, 42), CommitmentHash(d, 42))
	assert.NotEqual(t, CommitmentHash(d, 42), CommitmentHash(d, 43), "nonce changes the hash")

	other := d
	other.IsBuy = false
	assert.NotEqual(t, CommitmentHash(d, 42), CommitmentHash(other, 42))
}

func TestCommitmentHashFieldBoundaries(t *testing.T) {
	// Length prefixes keep adjacent string fields from aliasing.
	a := OrderDigest{User: "ab", SyntheticID: "c"}
	b := OrderDigest{User: "a", SyntheticID: "bc"}
	assert.NotEqual(t, CommitmentHash(a, 0), CommitmentHash(b, 0))
}

func TestKeeperKeyEncryptDecryptRoundTrip(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKeeperKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKeeperKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKeeperKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeeperKeyValidation(t *testing.T) {
	_, err := EncryptKeeperKey("deadbeef", "pw")
	assert.Error(t, err, "short key rejected")

	_, err = EncryptKeeperKey("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "")
	assert.Error(t, err, "empty password rejected")
}

func TestLoadKeeperKeyFromEncryptedFile(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKeeperKey(keyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keeper.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	key, err := LoadKeeperKey(KeeperKeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)

	raw, err := LoadKeeperKey(KeeperKeyConfig{RawPrivateKey: "0x" + keyHex})
	require.NoError(t, err)
	assert.Equal(t, KeeperAddress(raw), KeeperAddress(key))

	_, err = LoadKeeperKey(KeeperKeyConfig{})
	assert.Error(t, err)
}

func TestSignPayload(t *testing.T) {
	key, err := LoadKeeperKey(KeeperKeyConfig{
		RawPrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	})
	require.NoError(t, err)

	sig, err := SignPayload(key, []byte(`{"position_id":"pos-1"}`))
	require.NoError(t, err)
	assert.Len(t, sig, 130, "65-byte signature hex-encoded")
}
