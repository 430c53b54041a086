package secrets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andrewblevins/space-sub000/internal/kv"
	"github.com/andrewblevins/space-sub000/internal/space"
)

// Vault stores named secrets as encrypted values in the key-value store.
// Writing needs only the Encryptor; reading takes an unlocked
// DecryptionContext.
type Vault struct {
	store kv.Store
	enc   Encryptor
}

// NewVault creates a Vault over the given store and encryptor.
func NewVault(store kv.Store, enc Encryptor) *Vault {
	return &Vault{store: store, enc: enc}
}

// Set encrypts and stores the secret under name.
func (v *Vault) Set(name, value string) error {
	ciphertext, err := v.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting secret %s: %w", name, err)
	}
	if err := v.store.Set(space.KeySecretPrefix+name, ciphertext); err != nil {
		return fmt.Errorf("storing secret %s: %w", name, err)
	}
	return nil
}

// Get decrypts and returns the named secret, or ErrNotFound.
func (v *Vault) Get(name string, dc DecryptionContext) (string, error) {
	ciphertext, ok, err := v.store.Get(space.KeySecretPrefix + name)
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", name, err)
	}
	if !ok {
		return "", fmt.Errorf("secret %s: %w", name, space.ErrNotFound)
	}
	plaintext, err := dc.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypting secret %s: %w", name, err)
	}
	return plaintext, nil
}

// Names returns the stored secret names, sorted.
func (v *Vault) Names() ([]string, error) {
	keys, err := v.store.Keys(space.KeySecretPrefix)
	if err != nil {
		return nil, fmt.Errorf("enumerating secrets: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, space.KeySecretPrefix)
		// The key pair shares the store but not the prefix, so nothing
		// to filter here beyond empty suffixes.
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named secret. Deleting a missing name is not an error.
func (v *Vault) Delete(name string) error {
	if err := v.store.Delete(space.KeySecretPrefix + name); err != nil {
		return fmt.Errorf("deleting secret %s: %w", name, err)
	}
	return nil
}
