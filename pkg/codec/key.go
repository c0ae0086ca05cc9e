package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize = 32

	kdfIterations = 65536
	kdfSaltSize   = 16
)

// NewKDFSalt draws a fresh salt for passphrase-derived keys. The salt is
// generated once per store and persisted alongside the store format.
func NewKDFSalt() ([]byte, error) {
	salt := make([]byte, kdfSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to draw kdf salt: %w", err)
	}
	return salt, nil
}

// DeriveKey turns key material into a 32-byte AEAD key. A 64-character
// hex string is decoded and used as a raw key; anything else is treated
// as a passphrase and stretched with PBKDF2-SHA256 over the store salt.
func DeriveKey(material string, salt []byte) ([]byte, error) {
	if material == "" {
		return nil, fmt.Errorf("empty key material")
	}
	if len(material) == 2*KeySize {
		if key, err := hex.DecodeString(material); err == nil {
			return key, nil
		}
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("passphrase key requires a kdf salt")
	}
	return pbkdf2.Key([]byte(material), salt, kdfIterations, KeySize, sha256.New), nil
}
