package secrets

import (
	"fmt"
	"strings"

	"github.com/andrewblevins/space-sub000/internal/space"
)

const (
	testPublicValue  = "test-public-key"
	testSealedPrefix = "sealed:"
	testCipherPrefix = "cipher:"
)

// TestEncryptor is a deterministic Encryptor for tests. Ciphertexts are the
// plaintext behind a marker prefix, and unlocking checks the passphrase
// against the one given to Setup. Not encryption; do not use outside tests.
type TestEncryptor struct {
	store space.KeyValue
}

var _ Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor over the given store.
func NewTestEncryptor(store space.KeyValue) *TestEncryptor {
	return &TestEncryptor{store: store}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	if err := e.store.Set(space.KeyPublicKey, testPublicValue); err != nil {
		return fmt.Errorf("storing public key: %w", err)
	}
	if err := e.store.Set(space.KeyPrivateKey, testSealedPrefix+passphrase); err != nil {
		return fmt.Errorf("storing private key: %w", err)
	}
	return nil
}

func (e *TestEncryptor) IsConfigured() (bool, error) {
	for _, key := range []string{space.KeyPublicKey, space.KeyPrivateKey} {
		if _, ok, err := e.store.Get(key); err != nil {
			return false, fmt.Errorf("reading %s: %w", key, err)
		} else if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *TestEncryptor) Encrypt(plaintext string) (string, error) {
	if ok, err := e.IsConfigured(); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("no key pair configured")
	}
	return testCipherPrefix + plaintext, nil
}

func (e *TestEncryptor) Unlock(passphrase string) (DecryptionContext, error) {
	sealed, ok, err := e.store.Get(space.KeyPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no key pair configured")
	}
	if sealed != testSealedPrefix+passphrase {
		return nil, fmt.Errorf("decrypting private key: wrong passphrase")
	}
	return testDecryptionContext{}, nil
}

type testDecryptionContext struct{}

func (testDecryptionContext) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, testCipherPrefix) {
		return "", fmt.Errorf("unrecognized ciphertext")
	}
	return strings.TrimPrefix(ciphertext, testCipherPrefix), nil
}
