// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package valkey stores the token cache in Valkey or Redis, so instances of a service can share it.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/valkey-io/valkey-go"
)

// Storage is a persistence.Persistence backed by a Valkey string key.
type Storage struct {
	client valkey.Client
	key    string
	// ttl is the expiry of the stored key. Zero means no expiry.
	ttl time.Duration
	// clientCacheTTL enables server-assisted client-side caching of reads when positive.
	clientCacheTTL time.Duration
}

var _ persistence.Persistence = (*Storage)(nil)

// Option is an optional argument to New.
type Option func(s *Storage)

// WithTTL sets an expiry on the stored cache. Each Save resets it.
func WithTTL(d time.Duration) Option {
	return func(s *Storage) {
		s.ttl = d
	}
}

// WithClientSideCache serves Load from a local copy for up to d. The server invalidates the
// copy when another client writes the key.
func WithClientSideCache(d time.Duration) Option {
	return func(s *Storage) {
		s.clientCacheTTL = d
	}
}

// New returns a Storage that keeps the cache under key. The caller owns client and closes it.
func New(client valkey.Client, key string, options ...Option) (*Storage, error) {
	if client == nil {
		return nil, errors.New("valkey client can't be nil")
	}
	if key == "" {
		return nil, errors.New("valkey key can't be empty")
	}
	s := &Storage{client: client, key: key}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Load implements persistence.Persistence.
func (s *Storage) Load(ctx context.Context) ([]byte, error) {
	var result valkey.ValkeyResult
	if s.clientCacheTTL > 0 {
		result = s.client.DoCache(ctx, s.client.B().Get().Key(s.key).Cache(), s.clientCacheTTL)
	} else {
		result = s.client.Do(ctx, s.client.B().Get().Key(s.key).Build())
	}
	b, err := result.AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get the cache from valkey: %w", err)
	}
	return b, nil
}

// Save implements persistence.Persistence.
func (s *Storage) Save(ctx context.Context, b []byte) error {
	var cmd valkey.Completed
	if s.ttl > 0 {
		cmd = s.client.B().Set().Key(s.key).Value(valkey.BinaryString(b)).ExSeconds(max(int64(s.ttl.Seconds()), 1)).Build()
	} else {
		cmd = s.client.B().Set().Key(s.key).Value(valkey.BinaryString(b)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set the cache in valkey: %w", err)
	}
	return nil
}
