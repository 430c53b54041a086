// Package secrets stores API credentials encrypted at rest in the shared
// key-value store. A key pair protects the secrets; the private key is
// itself sealed with the user's passphrase, so reading a secret requires an
// explicit unlock.
package secrets

// Encryptor manages the key pair and encrypts secret values. Encryption
// needs only the public key and works without a passphrase; decryption
// requires unlocking first.
type Encryptor interface {
	// Setup generates a fresh key pair, sealing the private key with the
	// passphrase. It overwrites any existing pair, orphaning secrets
	// encrypted under the old one.
	Setup(passphrase string) error

	// IsConfigured reports whether a key pair is present.
	IsConfigured() (bool, error)

	// Encrypt seals plaintext under the stored public key and returns an
	// armored ciphertext safe to store as a string value.
	Encrypt(plaintext string) (string, error)

	// Unlock opens the private key with the passphrase and returns a
	// context that can decrypt.
	Unlock(passphrase string) (DecryptionContext, error)
}

// DecryptionContext holds an unlocked private key.
type DecryptionContext interface {
	Decrypt(ciphertext string) (string, error)
}
