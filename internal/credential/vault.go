package credential

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/recall/internal/store"
)

var secretSuffixes = []string{"api_key", "password", "token"}

// IsSecretKey reports whether values under key are encrypted at rest.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretSuffixes {
		if strings.HasSuffix(k, s) {
			return true
		}
	}
	return false
}

// EnvName maps a config key to its environment fallback, e.g.
// "openai.api_key" to "OPENAI_API_KEY".
func EnvName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Vault stores configuration values, encrypting secret keys.
type Vault struct {
	cfg store.ConfigStore
	m   *Manager
}

func NewVault(cfg store.ConfigStore, m *Manager) *Vault {
	return &Vault{cfg: cfg, m: m}
}

// Set stores value under key, encrypting it when the key names a secret.
func (v *Vault) Set(ctx context.Context, key, value string) error {
	if IsSecretKey(key) && !IsEncrypted(value) {
		enc, err := v.m.Encrypt(key, value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
		value = enc
	}
	return v.cfg.SetConfig(ctx, key, value)
}

// Get returns the decrypted value stored under key, or "".
func (v *Vault) Get(ctx context.Context, key string) (string, error) {
	stored, err := v.cfg.GetConfig(ctx, key)
	if err != nil {
		return "", err
	}
	return v.m.Decrypt(key, stored)
}

// Lookup returns the stored value, falling back to the environment. Errors
// are treated as unset.
func (v *Vault) Lookup(ctx context.Context, key string) string {
	if val, err := v.Get(ctx, key); err == nil && val != "" {
		return val
	}
	return os.Getenv(EnvName(key))
}
