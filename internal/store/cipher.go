package store

import (
	"encoding/base64"
	"fmt"
)

// defaultCipherKey matches the key the legacy clients shipped with; rows
// written by either side stay readable by the other.
const defaultCipherKey = "vipup-static-key-2019"

// Cipher applies a static symmetric transform to the vipup field before it is
// persisted: XOR with a cycling key over the UTF-8 bytes, then base64. It is
// obfuscation of licensed content, not cryptography.
type Cipher struct {
	key []byte
}

// NewCipher creates a Cipher with the shared static key.
func NewCipher() *Cipher {
	return &Cipher{key: []byte(defaultCipherKey)}
}

// NewCipherWithKey creates a Cipher with a caller-provided key.
func NewCipherWithKey(key string) *Cipher {
	if key == "" {
		key = defaultCipherKey
	}
	return &Cipher{key: []byte(key)}
}

// Encrypt transforms plain text to its stored form. Empty input stays empty.
func (c *Cipher) Encrypt(plain string) string {
	if plain == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString(c.xor([]byte(plain)))
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("base64.DecodeString > %w", err)
	}
	return string(c.xor(raw)), nil
}

func (c *Cipher) xor(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ c.key[i%len(c.key)]
	}
	return out
}
