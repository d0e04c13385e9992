// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
)

// Backend names accepted by MSALCACHE_BACKEND and --backend.
const (
	backendFile     = "file"
	backendKeyring  = "keyring"
	backendValkey   = "valkey"
	backendKeyVault = "keyvault"
)

// Config is read from the environment. Flags override it.
type Config struct {
	// Backend selects where the cache is stored: file, keyring, valkey or keyvault.
	Backend string `env:"MSALCACHE_BACKEND, default=file"`

	File       FileConfig
	Keyring    KeyringConfig
	Valkey     ValkeyConfig
	KeyVault   KeyVaultConfig
	Encryption EncryptionConfig
	Log        LogConfig
}

type FileConfig struct {
	// Path defaults to msal/token_cache.json in the user cache directory.
	Path string `env:"MSALCACHE_FILE"`
}

type KeyringConfig struct {
	Service string `env:"MSALCACHE_KEYRING_SERVICE, default=msal-token-cache"`
	Key     string `env:"MSALCACHE_KEYRING_KEY, default=token_cache"`
}

type ValkeyConfig struct {
	// Address is the server address (host:port).
	Address  string `env:"MSALCACHE_VALKEY_ADDRESS"`
	TLS      bool   `env:"MSALCACHE_VALKEY_TLS, default=true"`
	Username string `env:"MSALCACHE_VALKEY_USERNAME"`
	Password string `env:"MSALCACHE_VALKEY_PASSWORD"`
	Key      string `env:"MSALCACHE_VALKEY_KEY, default=msal-token-cache"`
}

type KeyVaultConfig struct {
	// URL of the vault, such as https://myvault.vault.azure.net.
	URL    string `env:"MSALCACHE_KEYVAULT_URL"`
	Secret string `env:"MSALCACHE_KEYVAULT_SECRET, default=msal-token-cache"`
	// AccessToken is a Key Vault access token, for example from
	// "az account get-access-token --resource https://vault.azure.net".
	AccessToken string `env:"MSALCACHE_KEYVAULT_ACCESS_TOKEN"`
}

// EncryptionConfig enables passphrase encryption of the stored cache.
type EncryptionConfig struct {
	Enabled bool `env:"MSALCACHE_ENCRYPT, default=false"`
	// Passphrase is prompted for on the terminal when empty.
	Passphrase string `env:"MSALCACHE_PASSPHRASE"`
}

type LogConfig struct {
	Level string `env:"MSALCACHE_LOG_LEVEL, default=warn"`
	PII   bool   `env:"MSALCACHE_LOG_PII, default=false"`
}

func loadConfig(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings of the selected backend and fills in defaults.
func (c *Config) Validate() error {
	switch c.Backend {
	case backendFile:
		if c.File.Path == "" {
			dir, err := os.UserCacheDir()
			if err != nil {
				return fmt.Errorf("MSALCACHE_FILE is not set and there is no user cache directory: %w", err)
			}
			c.File.Path = filepath.Join(dir, "msal", "token_cache.json")
		}
	case backendKeyring:
		if c.Keyring.Key == "" {
			return fmt.Errorf("MSALCACHE_KEYRING_KEY can't be empty")
		}
	case backendValkey:
		if c.Valkey.Address == "" {
			return fmt.Errorf("MSALCACHE_VALKEY_ADDRESS is required for the valkey backend")
		}
	case backendKeyVault:
		if c.KeyVault.URL == "" {
			return fmt.Errorf("MSALCACHE_KEYVAULT_URL is required for the keyvault backend")
		}
		if c.KeyVault.AccessToken == "" {
			return fmt.Errorf("MSALCACHE_KEYVAULT_ACCESS_TOKEN is required for the keyvault backend")
		}
	default:
		return fmt.Errorf("unknown backend %q, want one of file, keyring, valkey, keyvault", c.Backend)
	}
	return nil
}
