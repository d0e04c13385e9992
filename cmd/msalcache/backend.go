// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/99designs/keyring"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence/encrypted"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence/file"
	kr "github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence/keyring"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence/keyvault"
	vk "github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence/valkey"
	"github.com/valkey-io/valkey-go"
	"golang.org/x/term"
)

// openBackend returns the Persistence selected by cfg and a func releasing its resources.
func openBackend(ctx context.Context, cfg Config, stderr io.Writer) (persistence.Persistence, func(), error) {
	var p persistence.Persistence
	var err error
	closer := func() {}
	switch cfg.Backend {
	case backendFile:
		p, err = file.New(cfg.File.Path)
	case backendKeyring:
		p, err = kr.Open(keyring.Config{ServiceName: cfg.Keyring.Service}, cfg.Keyring.Key)
	case backendValkey:
		opt := valkey.ClientOption{
			InitAddress: []string{cfg.Valkey.Address},
			Username:    cfg.Valkey.Username,
			Password:    cfg.Valkey.Password,
		}
		if cfg.Valkey.TLS {
			opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		var client valkey.Client
		client, err = valkey.NewClient(opt)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't connect to valkey: %w", err)
		}
		closer = client.Close
		p, err = vk.New(client, cfg.Valkey.Key)
	case backendKeyVault:
		p, err = keyvault.New(cfg.KeyVault.URL, cfg.KeyVault.Secret, staticCredential{token: cfg.KeyVault.AccessToken})
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		closer()
		return nil, nil, err
	}

	if cfg.Encryption.Enabled {
		aead := encrypted.NewPassphraseAEAD(passphraseFunc(cfg.Encryption.Passphrase, stderr))
		p, err = encrypted.New(p, aead, nil)
		if err != nil {
			closer()
			return nil, nil, err
		}
	}
	return p, closer, nil
}

// passphraseFunc returns the configured passphrase, or prompts for one once and reuses it.
func passphraseFunc(configured string, stderr io.Writer) encrypted.PassphraseFunc {
	pass := configured
	return func() (string, error) {
		if pass != "" {
			return pass, nil
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("MSALCACHE_PASSPHRASE is not set and stdin is not a terminal")
		}
		fmt.Fprint(stderr, "Cache passphrase: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(stderr)
		if err != nil {
			return "", err
		}
		pass = string(b)
		return pass, nil
	}
}

// staticCredential is an azcore.TokenCredential returning a token obtained elsewhere.
type staticCredential struct {
	token string
}

func (c staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: c.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}
