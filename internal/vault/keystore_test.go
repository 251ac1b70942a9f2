package vault

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	data, err := EncryptSeed(testSeed, "hunter2")
	require.NoError(t, err)

	seed, err := DecryptSeed(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)
}

func TestDecryptWrongPassword(t *testing.T) {
	data, err := EncryptSeed(testSeed, "hunter2")
	require.NoError(t, err)

	_, err = DecryptSeed(data, "hunter3")
	assert.Error(t, err)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	data, err := EncryptSeed(testSeed, "hunter2")
	require.NoError(t, err)

	var enc encryptedSeedJSON
	require.NoError(t, json.Unmarshal(data, &enc))

	raw, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff
	enc.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	tampered, err := json.Marshal(enc)
	require.NoError(t, err)

	_, err = DecryptSeed(tampered, "hunter2")
	assert.Error(t, err)
}

func TestDecryptUnsupportedVersion(t *testing.T) {
	data, err := EncryptSeed(testSeed, "hunter2")
	require.NoError(t, err)

	var enc encryptedSeedJSON
	require.NoError(t, json.Unmarshal(data, &enc))
	enc.Version = 99

	bumped, err := json.Marshal(enc)
	require.NoError(t, err)

	_, err = DecryptSeed(bumped, "hunter2")
	assert.ErrorContains(t, err, "unsupported keystore version")
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := EncryptSeed("not a seed", "hunter2")
	assert.ErrorIs(t, err, ErrBadSeed)

	_, err = EncryptSeed(testSeed, "")
	assert.Error(t, err)
}

func TestLoadSeedRawWins(t *testing.T) {
	// A raw seed short-circuits file resolution, so the bogus path must
	// never be read.
	seed, err := LoadSeed(testSeed, "/nonexistent/keystore.json", "")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)
}

func TestLoadSeedRejectsBadRaw(t *testing.T) {
	_, err := LoadSeed("bogus", "", "")
	assert.ErrorIs(t, err, ErrBadSeed)
}

func TestLoadSeedFromFile(t *testing.T) {
	data, err := EncryptSeed(testSeed, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keystore.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	seed, err := LoadSeed("", path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)
}

func TestLoadSeedMissingEverything(t *testing.T) {
	_, err := LoadSeed("", "", "")
	assert.ErrorContains(t, err, "no seed material")
}
