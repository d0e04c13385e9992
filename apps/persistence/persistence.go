// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package persistence provides cache.Plugin implementations that store the serialized token cache.

A backend implements Persistence. NewPlugin turns it into a cache.Plugin that loads the cache
before each access and saves it after each change:

	p, err := file.New("/home/user/.msal/cache.json")
	if err != nil {
		// TODO: handle error
	}
	tc := tokencache.New(tokencache.WithPlugin(persistence.NewPlugin(p)))

Backends for files, the OS keyring, Valkey and Azure Key Vault are in subpackages. The
encrypted subpackage wraps any backend to encrypt the cache before it is stored.
*/
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/logger"
)

// DefaultTimeout bounds each Load and Save when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// Persistence stores the serialized cache. Implementations must be safe for concurrent use.
type Persistence interface {
	// Load returns the stored cache. It returns nil and no error when nothing is stored yet.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored cache with b.
	Save(ctx context.Context, b []byte) error
}

// Option is an optional argument to NewPlugin.
type Option func(p *plugin)

// WithLogger sets the logger used by the plugin.
func WithLogger(l *slog.Logger) Option {
	return func(p *plugin) {
		p.log = logger.New(l, false)
	}
}

// WithTimeout sets the timeout applied to Load and Save when the context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *plugin) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPlugin returns a cache.Plugin that loads the cache from p before every access and saves
// it to p after every change.
func NewPlugin(p Persistence, options ...Option) cache.Plugin {
	pl := &plugin{p: p, timeout: DefaultTimeout, log: logger.Discard()}
	for _, o := range options {
		o(pl)
	}
	return pl
}

type plugin struct {
	p       Persistence
	timeout time.Duration
	log     *logger.Logger
}

func (p *plugin) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// BeforeCacheAccess implements cache.Plugin.
func (p *plugin) BeforeCacheAccess(ctx context.Context, c *cache.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	b, err := p.p.Load(ctx)
	if err != nil {
		return fmt.Errorf("couldn't load the token cache: %w", err)
	}
	p.log.Log(ctx, logger.Debug, "loaded token cache", logger.Field("bytes", len(b)))
	return c.TokenCache.Unmarshal(b)
}

// AfterCacheAccess implements cache.Plugin.
func (p *plugin) AfterCacheAccess(ctx context.Context, c *cache.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	b, err := c.TokenCache.Marshal()
	if err != nil {
		return fmt.Errorf("couldn't serialize the token cache: %w", err)
	}
	if err := p.p.Save(ctx, b); err != nil {
		return fmt.Errorf("couldn't save the token cache: %w", err)
	}
	p.log.Log(ctx, logger.Debug, "saved token cache", logger.Field("bytes", len(b)))
	return nil
}

// Memory is a Persistence that keeps the cache in memory. It is useful in tests and for
// sharing one cache between TokenCache instances in a process.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

// Load implements Persistence.
func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

// Save implements Persistence.
func (m *Memory) Save(ctx context.Context, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), b...)
	return nil
}
