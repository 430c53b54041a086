package secrets

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// AgeEncryptor implements Encryptor using filippo.io/age with X25519 keys.
// The public key is stored in plaintext; the private key is encrypted with
// the user's passphrase using age's scrypt-based passphrase encryption.
// Both live in the shared key-value store, armored, so they travel with the
// rest of the client's state.
type AgeEncryptor struct {
	store space.KeyValue
}

var _ Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates an AgeEncryptor over the given store.
func NewAgeEncryptor(store space.KeyValue) *AgeEncryptor {
	return &AgeEncryptor{store: store}
}

// Setup generates a new X25519 key pair, stores the public key in plaintext,
// and stores the private key sealed with the passphrase.
func (e *AgeEncryptor) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	sealed, err := encryptArmored(identity.String()+"\n", recipient)
	if err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}

	if err := e.store.Set(space.KeyPublicKey, identity.Recipient().String()); err != nil {
		return fmt.Errorf("storing public key: %w", err)
	}
	if err := e.store.Set(space.KeyPrivateKey, sealed); err != nil {
		return fmt.Errorf("storing private key: %w", err)
	}
	return nil
}

// IsConfigured returns true if both halves of the key pair are present.
func (e *AgeEncryptor) IsConfigured() (bool, error) {
	for _, key := range []string{space.KeyPublicKey, space.KeyPrivateKey} {
		if _, ok, err := e.store.Get(key); err != nil {
			return false, fmt.Errorf("reading %s: %w", key, err)
		} else if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Encrypt seals plaintext under the stored public key.
func (e *AgeEncryptor) Encrypt(plaintext string) (string, error) {
	recipient, err := e.loadRecipient()
	if err != nil {
		return "", fmt.Errorf("loading public key: %w", err)
	}
	return encryptArmored(plaintext, recipient)
}

// Unlock decrypts the private key using the passphrase and returns an
// AgeDecryptionContext holding the unlocked identity.
func (e *AgeEncryptor) Unlock(passphrase string) (DecryptionContext, error) {
	sealed, ok, err := e.store.Get(space.KeyPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no key pair configured")
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	keyData, err := decryptArmored(sealed, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}

	identities, err := age.ParseIdentities(strings.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in private key")
	}

	return &AgeDecryptionContext{identity: identities[0]}, nil
}

func (e *AgeEncryptor) loadRecipient() (age.Recipient, error) {
	pub, ok, err := e.store.Get(space.KeyPublicKey)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no key pair configured")
	}

	recipients, err := age.ParseRecipients(strings.NewReader(pub))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key")
	}
	return recipients[0], nil
}

// AgeDecryptionContext holds an unlocked age identity for decrypting secrets.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt opens armored ciphertext with the unlocked identity.
func (c *AgeDecryptionContext) Decrypt(ciphertext string) (string, error) {
	return decryptArmored(ciphertext, c.identity)
}

func encryptArmored(plaintext string, recipient age.Recipient) (string, error) {
	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)

	w, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return "", fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.String(), nil
}

func decryptArmored(ciphertext string, identity age.Identity) (string, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(ciphertext)), identity)
	if err != nil {
		return "", fmt.Errorf("creating decrypted reader: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decrypting data: %w", err)
	}
	return string(plaintext), nil
}
