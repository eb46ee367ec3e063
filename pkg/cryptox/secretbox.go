package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// sealedPrefix marks values produced by SecretBox.Seal so that plaintext
// values written before encryption was enabled can still be read.
const sealedPrefix = "enc:v1:"

// ErrSecretBoxOpen is returned when a sealed value fails authentication.
var ErrSecretBoxOpen = errors.New("cryptox: cannot open sealed value")

// SecretBox encrypts short secrets (MFA seeds) with AES-256-GCM.
// The output format is: "enc:v1:" + base64([12-byte nonce][ciphertext][16-byte tag]).
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives a 32-byte AES-256 key from the given key material using SHA-256.
func NewSecretBox(keyMaterial []byte) (*SecretBox, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("cryptox: empty master key")
	}
	key := sha256.Sum256(keyMaterial)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretBox{aead: gcm}, nil
}

// LoadMasterKey loads key material from either:
//  1. The file at path (if set)
//  2. The AUTH_MASTER_KEY environment variable
//
// It returns ephemeral=true together with freshly generated random material
// when neither is available. Values sealed under an ephemeral key do not
// survive a restart.
func LoadMasterKey(path string) (material []byte, ephemeral bool, err error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read master key file: %w", err)
		}
		return data, false, nil
	}
	if env := os.Getenv("AUTH_MASTER_KEY"); env != "" {
		return []byte(env), false, nil
	}

	material = make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, false, fmt.Errorf("failed to generate ephemeral master key: %w", err)
	}
	return material, true, nil
}

// Seal encrypts plaintext with a random nonce.
func (b *SecretBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned unchanged.
func (b *SecretBox) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretBoxOpen, err)
	}

	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrSecretBoxOpen)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretBoxOpen, err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the SecretBox prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
