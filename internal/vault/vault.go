// Package vault stores the Anthropic API key in the OS keychain, with
// environment-variable and file fallbacks.
package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "metagen"

// DefaultAccount is the keychain account the provider key lives under.
const DefaultAccount = "anthropic"

// envFallback is checked when the keychain has no entry.
const envFallback = "ANTHROPIC_API_KEY"

// Vault provides secure API key storage using the OS keychain.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores an API key for the given account in the OS keychain.
func (v *Vault) Set(account, key string) error {
	return keyring.Set(serviceName, account, key)
}

// Get retrieves the API key for the given account. It first checks the
// OS keychain, then falls back to the ANTHROPIC_API_KEY environment
// variable for the default account.
func (v *Vault) Get(account string) (string, error) {
	secret, err := keyring.Get(serviceName, account)
	if err == nil && secret != "" {
		return secret, nil
	}

	if account == DefaultAccount {
		if val := os.Getenv(envFallback); val != "" {
			return val, nil
		}
	}

	return "", fmt.Errorf("no key found for %q: not in keychain and %s not set", account, envFallback)
}

// knownAccounts are the accounts List checks for stored keys.
var knownAccounts = []string{DefaultAccount}

// List returns the known accounts that have a key available, whether
// from the keychain or the environment fallback.
func (v *Vault) List() ([]string, error) {
	var accounts []string
	for _, account := range knownAccounts {
		if v.Has(account) {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// Delete removes the API key for the given account from the OS keychain.
func (v *Vault) Delete(account string) error {
	return keyring.Delete(serviceName, account)
}

// Has reports whether a key is available for the account from any source.
func (v *Vault) Has(account string) bool {
	_, err := v.Get(account)
	return err == nil
}

// ResolveKeyRef parses a key reference and retrieves the corresponding
// API key. Supported formats:
//   - "keyring://metagen/<account>"
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/key"
//
// Anything else is treated as a literal key when non-empty.
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	if strings.HasPrefix(keyRef, "keyring://") {
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference %q (expected \"keyring://metagen/<account>\")", keyRef)
		}
		return v.Get(parts[1])
	}

	if strings.HasPrefix(keyRef, "env:") {
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)
	}

	if strings.HasPrefix(keyRef, "file://") {
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	if keyRef != "" {
		return keyRef, nil
	}
	return "", fmt.Errorf("empty key reference")
}
