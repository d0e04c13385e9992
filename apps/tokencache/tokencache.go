// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package tokencache provides TokenCache, the in-memory token cache shared by MSAL clients.

A TokenCache never performs I/O. A host that wants the cache to outlive the process, or to
share it between processes, registers a cache.Plugin with WithPlugin. The plugin's
BeforeCacheAccess hook runs before every operation that reads or writes the cache and usually
loads the persisted cache with Unmarshal. AfterCacheAccess runs only when the operation changed
the cache and usually persists the result of Marshal. The apps/persistence package provides
plugins for common storage media.

Data in the persisted document that this package does not recognize, such as sections written
by other MSAL libraries, is kept and written back unchanged.
*/
package tokencache

import (
	"context"
	"log/slog"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/errors"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/idtoken"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/logger"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/storage"
	"github.com/google/uuid"
)

// TokenCache is an in-memory token cache. It implements cache.TokenCache so plugins can
// load and save it. A TokenCache must not be copied after first use.
//
// TokenCache assumes one operation at a time. Hosts sharing a persisted cache between
// processes must coordinate in their plugin, for example with a file lock.
type TokenCache struct {
	manager  *storage.Manager
	plugin   cache.Plugin
	decoder  idtoken.Decoder
	clientID string
	log      *logger.Logger
}

var _ cache.TokenCache = (*TokenCache)(nil)

// Option is an optional argument to New.
type Option func(t *TokenCache)

// WithPlugin registers the hooks that run around each cache access.
func WithPlugin(p cache.Plugin) Option {
	return func(t *TokenCache) {
		t.plugin = p
	}
}

// WithLogger sets the logger. Personal data such as usernames and account ids is only
// logged when piiEnabled is true. apps/logger.New adapts a callback to a *slog.Logger.
func WithLogger(l *slog.Logger, piiEnabled bool) Option {
	return func(t *TokenCache) {
		t.log = logger.New(l, piiEnabled)
	}
}

// WithDecoder sets the base64 decoder used to read ID token claims.
func WithDecoder(d idtoken.Decoder) Option {
	return func(t *TokenCache) {
		if d != nil {
			t.decoder = d
		}
	}
}

// WithClientID limits the ID tokens read for account claims to those issued to clientID.
// By default an ID token of any client is used.
func WithClientID(clientID string) Option {
	return func(t *TokenCache) {
		t.clientID = clientID
	}
}

// New is the constructor for TokenCache. The cache starts empty.
func New(options ...Option) *TokenCache {
	t := &TokenCache{
		decoder: idtoken.NewDecoder(),
		log:     logger.Discard(),
	}
	for _, o := range options {
		o(t)
	}
	t.manager = storage.New(t.log)
	return t
}

// access runs op between the plugin's hooks. The after hook runs only if op changed the
// store. Loading done by the before hook is not counted as a change.
func (t *TokenCache) access(ctx context.Context, name string, op func(log *logger.Logger) error) error {
	log := t.log.With(logger.Field("correlation_id", uuid.NewString()), logger.Field("operation", name))

	if t.plugin != nil {
		c := &cache.Context{TokenCache: t, HasChanged: t.HasChanged()}
		if err := t.plugin.BeforeCacheAccess(ctx, c); err != nil {
			log.Log(ctx, logger.Err, "before cache access hook failed", logger.Field("error", err))
			return &errors.CacheAccessErr{Phase: errors.BeforeCacheAccess, Operation: name, HasChanged: c.HasChanged, Err: err}
		}
	}
	generation := t.manager.Generation()

	if err := op(log); err != nil {
		return err
	}

	if t.manager.Generation() == generation {
		log.Log(ctx, logger.Debug, "cache unchanged")
		return nil
	}
	if t.plugin == nil {
		return nil
	}
	c := &cache.Context{TokenCache: t, HasChanged: t.HasChanged()}
	if err := t.plugin.AfterCacheAccess(ctx, c); err != nil {
		log.Log(ctx, logger.Err, "after cache access hook failed", logger.Field("error", err))
		return &errors.CacheAccessErr{Phase: errors.AfterCacheAccess, Operation: name, HasChanged: c.HasChanged, Err: err}
	}
	return nil
}

// Marshal implements cache.Marshaler. A successful Marshal resets HasChanged.
func (t *TokenCache) Marshal() ([]byte, error) {
	return t.manager.Marshal()
}

// Unmarshal implements cache.Unmarshaler. It replaces the cache's contents with b. Empty input
// is ignored. Input that can't be parsed empties the cache and is logged, but is not an error.
func (t *TokenCache) Unmarshal(b []byte) error {
	return t.manager.Unmarshal(b)
}

// Serialize returns the cache as a JSON document.
func (t *TokenCache) Serialize() (string, error) {
	b, err := t.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize replaces the cache's contents with the JSON document s.
func (t *TokenCache) Deserialize(s string) error {
	return t.Unmarshal([]byte(s))
}

// HasChanged reports if the cache changed since it was last marshaled.
func (t *TokenCache) HasChanged() bool {
	return t.manager.HasChanged()
}

// KVStore returns every entry of the recognized sections by key. Recognized entries are
// entity values, unrecognized entries are json.RawMessage. Hooks are not run.
//
// Keys are not qualified by section. If two sections hold entries under the same key, which
// only happens with unrecognized entries, KVStore returns one of them. Sections and Serialize
// still account for both.
func (t *TokenCache) KVStore() map[string]any {
	return t.manager.KV()
}
