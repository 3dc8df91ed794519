// Package crypt provides optional at-rest encryption for backup artifacts.
// Files are sealed with AES-256-GCM using a key derived from a passphrase
// via PBKDF2; the salt and nonce are carried in the file header.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"hostbackup/internal/engine"
)

const (
	saltSize   = 16
	keySize    = 32
	iterations = 100000
)

var fileMagic = []byte("HBENC1")

// Encryptor seals and opens artifact files with a passphrase-derived key.
type Encryptor struct {
	passphrase []byte
}

// NewEncryptor creates an encryptor. An empty passphrase is invalid.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, engine.NewValidationError("encryption passphrase cannot be empty", nil)
	}
	return &Encryptor{passphrase: []byte(passphrase)}, nil
}

// EncryptFile seals srcPath into dstPath. Layout: magic, salt, nonce,
// GCM ciphertext.
func (e *Encryptor) EncryptFile(srcPath, dstPath string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return engine.NewConfigurationError("failed to read artifact for encryption", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return engine.NewConfigurationError("failed to generate salt", err)
	}

	gcm, err := e.gcm(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return engine.NewConfigurationError("failed to generate nonce", err)
	}

	var out bytes.Buffer
	out.Write(fileMagic)
	out.Write(salt)
	out.Write(nonce)
	out.Write(gcm.Seal(nil, nonce, plaintext, nil))

	if err := os.WriteFile(dstPath, out.Bytes(), 0600); err != nil {
		return engine.NewConfigurationError("failed to write encrypted artifact", err)
	}
	return nil
}

// DecryptFile opens srcPath into dstPath.
func (e *Encryptor) DecryptFile(srcPath, dstPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return engine.NewConfigurationError("failed to read encrypted artifact", err)
	}

	if !bytes.HasPrefix(data, fileMagic) {
		return engine.NewVerificationError("artifact is not an encrypted backup", nil)
	}
	data = data[len(fileMagic):]

	if len(data) < saltSize {
		return engine.NewCorruptionError("encrypted artifact is truncated", nil)
	}
	salt, data := data[:saltSize], data[saltSize:]

	gcm, err := e.gcm(salt)
	if err != nil {
		return err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return engine.NewCorruptionError("encrypted artifact is truncated", nil)
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return engine.NewCorruptionError("failed to decrypt artifact", err)
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return engine.NewConfigurationError("failed to write decrypted artifact", err)
	}
	return nil
}

// IsEncrypted reports whether a file carries the encrypted-artifact header.
func IsEncrypted(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return bytes.Equal(head, fileMagic)
}

func (e *Encryptor) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to create GCM cipher", err)
	}
	return gcm, nil
}
