package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrPassphraseRequired is returned when the credential key is passphrase
// protected and no passphrase was given.
var ErrPassphraseRequired = errors.New("SSH key is encrypted: passphrase required")

// credentialKeyMessage is signed to derive the credential file key. Changing
// it makes existing credentials.enc files unreadable.
var credentialKeyMessage = []byte("agentchat-credential-key-v1")

// credentialCipher seals the credential file with AES-256-GCM. The key is
// the SHA-256 of an SSH signature over credentialKeyMessage, so only the
// holder of the SSH key can open the file.
type credentialCipher struct {
	aead cipher.AEAD
}

func newCredentialCipher(keyPath, passphrase string) (*credentialCipher, error) {
	signer, err := loadSigner(keyPath, passphrase)
	if err != nil {
		return nil, err
	}

	key, err := deriveCredentialKey(signer)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if DebugLog != nil {
		DebugLog.Printf("[Config] Credential key derived from %s (%s)", keyPath, signer.PublicKey().Type())
	}
	return &credentialCipher{aead: aead}, nil
}

// seal returns nonce || ciphertext || tag.
func (c *credentialCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *credentialCipher) open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("credential file too short")
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("credential file does not match this SSH key: %w", err)
	}
	return plaintext, nil
}

// deriveCredentialKey requires a key type that signs deterministically
// (ed25519, RSA).
func deriveCredentialKey(signer ssh.Signer) ([]byte, error) {
	sig, err := signer.Sign(rand.Reader, credentialKeyMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to sign with SSH key: %w", err)
	}
	sum := sha256.Sum256(sig.Blob)
	return sum[:], nil
}

// loadSigner parses the SSH private key at keyPath, unlocking it with
// passphrase when it is protected.
func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		return signer, nil
	case !errors.As(err, &missing):
		return nil, fmt.Errorf("invalid SSH key %s: %w", keyPath, err)
	case passphrase == "":
		return nil, ErrPassphraseRequired
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to unlock SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}

// IsSSHKeyEncrypted reports whether the key at keyPath needs a passphrase.
func IsSSHKeyEncrypted(keyPath string) (bool, error) {
	_, err := loadSigner(keyPath, "")
	if errors.Is(err, ErrPassphraseRequired) {
		return true, nil
	}
	return false, err
}

// FindSSHKeys lists the private keys in ~/.ssh usable for the credential
// file, preferred first. ECDSA keys are skipped: their signatures are
// randomized.
func FindSSHKeys() ([]string, error) {
	sshDir := filepath.Join(GetHomeDir(), ".ssh")
	if _, err := os.Stat(sshDir); os.IsNotExist(err) {
		return nil, nil
	}

	var found []string
	for _, name := range []string{"agentchat_ed25519", "id_ed25519", "id_rsa"} {
		keyPath := filepath.Join(sshDir, name)
		data, err := os.ReadFile(keyPath)
		if err != nil {
			continue
		}
		if block, _ := pem.Decode(data); block != nil && strings.HasSuffix(block.Type, "PRIVATE KEY") {
			found = append(found, keyPath)
		}
	}
	return found, nil
}
