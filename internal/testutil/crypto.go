package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/fieldinbox/internal/crypto"
)

// TestEncryptionKey is a deterministic base64 key for tests.
var TestEncryptionKey = func() string {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}()

// NewTestEncryptor returns an encryptor using TestEncryptionKey.
func NewTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	encryptor, err := crypto.NewEncryptor(TestEncryptionKey)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	return encryptor
}
