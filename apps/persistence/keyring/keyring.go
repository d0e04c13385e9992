// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package keyring stores the token cache in the operating system's keyring, such as the macOS
// Keychain, Windows Credential Manager or the Secret Service on Linux.
package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
)

// DefaultServiceName is the keyring service used by Open when the config doesn't name one.
const DefaultServiceName = "msal-token-cache"

// Storage is a persistence.Persistence backed by a keyring item.
type Storage struct {
	ring keyring.Keyring
	key  string
}

var _ persistence.Persistence = (*Storage)(nil)

// Open opens the keyring described by cfg and returns a Storage for the item named key.
func Open(cfg keyring.Config, key string) (*Storage, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't open the keyring: %w", err)
	}
	return New(ring, key)
}

// New returns a Storage for the item named key in ring.
func New(ring keyring.Keyring, key string) (*Storage, error) {
	if ring == nil {
		return nil, errors.New("keyring can't be nil")
	}
	if key == "" {
		return nil, errors.New("keyring item key can't be empty")
	}
	return &Storage{ring: ring, key: key}, nil
}

// Load implements persistence.Persistence.
func (s *Storage) Load(ctx context.Context) ([]byte, error) {
	item, err := s.ring.Get(s.key)
	if err == keyring.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.Data, nil
}

// Save implements persistence.Persistence.
func (s *Storage) Save(ctx context.Context, b []byte) error {
	return s.ring.Set(keyring.Item{
		Key:         s.key,
		Data:        b,
		Label:       "MSAL token cache",
		Description: "Token cache shared by MSAL applications",
	})
}
