package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations follows the current OWASP recommendation for
	// PBKDF2-HMAC-SHA256.
	pbkdf2Iterations = 480_000

	saltLen        = 16
	aesKeyLen      = 32
	currentVersion = 1
)

// encryptedSeedJSON is the on-disk format of an encrypted master seed.
// All byte fields are base64 standard-encoded.
type encryptedSeedJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// EncryptSeed encrypts a master seed with a password and returns the
// JSON keystore bytes. The key is derived with PBKDF2-HMAC-SHA256 and
// the seed is sealed with AES-256-GCM.
func EncryptSeed(seed, password string) ([]byte, error) {
	if !ValidSeed(seed) {
		return nil, ErrBadSeed
	}
	if password == "" {
		return nil, errors.New("vault: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(seed), nil)

	out, err := json.Marshal(encryptedSeedJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: marshal keystore: %w", err)
	}
	return out, nil
}

// DecryptSeed decrypts keystore bytes produced by EncryptSeed.
func DecryptSeed(data []byte, password string) (string, error) {
	var enc encryptedSeedJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return "", fmt.Errorf("vault: parse keystore: %w", err)
	}
	if enc.Version != currentVersion {
		return "", fmt.Errorf("vault: unsupported keystore version %d", enc.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(enc.Salt)
	if err != nil {
		return "", fmt.Errorf("vault: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.Nonce)
	if err != nil {
		return "", fmt.Errorf("vault: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("vault: keystore nonce has wrong length")
	}

	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt seed (wrong password?): %w", err)
	}
	if !ValidSeed(string(seed)) {
		return "", ErrBadSeed
	}
	return string(seed), nil
}

// LoadSeed resolves the master seed from the available sources, in
// order: a raw seed value, then an encrypted keystore file unlocked
// with password. Returns an error when neither is provided.
func LoadSeed(raw, encryptedPath, password string) (string, error) {
	if raw != "" {
		if !ValidSeed(raw) {
			return "", ErrBadSeed
		}
		return raw, nil
	}

	if encryptedPath != "" {
		data, err := os.ReadFile(encryptedPath)
		if err != nil {
			return "", fmt.Errorf("vault: read keystore %s: %w", encryptedPath, err)
		}
		return DecryptSeed(data, password)
	}

	return "", errors.New("vault: no seed material provided")
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return gcm, nil
}
