package common

import (
	"crypto/rand"
	"encoding/base64"
)

// MakeRandURLSafeString generates size random bytes from crypto/rand and
// encodes them with unpadded URL-safe base64.
//
//	id, err := MakeRandURLSafeString(32) // 43 chars, 256 bits of entropy
func MakeRandURLSafeString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. Nil is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
