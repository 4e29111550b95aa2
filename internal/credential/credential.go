// Package credential encrypts secret configuration values before they reach
// the configuration table. Each key name gets its own AES-256-GCM key, derived
// with HKDF from material tied to this machine and user, so a ciphertext
// copied to another key or another machine does not decrypt.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// EncryptedPrefix marks stored values that Decrypt must open.
const EncryptedPrefix = "enc:v1:"

const hkdfInfo = "recall-configuration"

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid encrypted format")
)

// Manager seals and opens configuration values.
type Manager struct {
	master []byte
}

// NewManager uses key material from the host name, home directory, platform
// and user id.
func NewManager() *Manager {
	return NewManagerWithKey(machineSecret())
}

// NewManagerWithKey uses master as HKDF input key material.
func NewManagerWithKey(master []byte) *Manager {
	return &Manager{master: append([]byte(nil), master...)}
}

func machineSecret() []byte {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	parts := []string{host, home, runtime.GOOS, runtime.GOARCH, "uid:" + strconv.Itoa(os.Getuid()), os.Getenv("USER")}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return sum[:]
}

// aead returns the cipher bound to one configuration key name.
func (m *Manager) aead(name string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, m.master, []byte(name), []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key for %s: %w", name, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext for storage under name. The empty string stays empty.
func (m *Manager) Encrypt(name, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := m.aead(name)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(name))
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value stored under name. Values without the prefix were
// stored in the clear and come back unchanged.
func (m *Manager) Decrypt(name, stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, EncryptedPrefix)
	if !ok {
		return stored, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	gcm, err := m.aead(name)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", ErrInvalidFormat
	}

	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, []byte(name))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, name)
	}
	return string(plain), nil
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
