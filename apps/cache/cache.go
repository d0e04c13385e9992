// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache allows third parties to implement external storage for caching token data
for distributed systems or multiple local applications access.

The data stored and extracted will represent the entire cache. Therefore it is recommended
one token cache per user. The serialized form is the JSON document shared by MSAL in every
language, but implementers should treat it as opaque.

A Plugin is given a Context before and after each cache access. The usual implementation
loads the cache from storage in BeforeCacheAccess and saves it in AfterCacheAccess:

	func (p *myPlugin) BeforeCacheAccess(ctx context.Context, c *cache.Context) error {
		b, err := p.read(ctx)
		if err != nil {
			return err
		}
		return c.TokenCache.Unmarshal(b)
	}

	func (p *myPlugin) AfterCacheAccess(ctx context.Context, c *cache.Context) error {
		b, err := c.TokenCache.Marshal()
		if err != nil {
			return err
		}
		return p.write(ctx, b)
	}
*/
package cache

import "context"

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache, overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// ExportReplaceCtx is the same as ExportReplace except that it supports passing a context.Context
// object. A type implementing ExportReplaceCtx must make calls to ExportReplace.Replace/Export call
// ReplaceCtx/ExportCtx with a context.Background() set to the default timeout.
// nil Context is not supported and we do not define
// the outcome of passing one. A Context without a timeout must receive a default timeout specified
// by the implementor. Retries must be implemented inside the implementation.
type ExportReplaceCtx interface {
	ExportReplace

	// ReplaceCtx replaces the cache with what is in external storage.
	// key is the suggested key which can be used for partioning the cache.
	// Implementors should honor Context cancellations and return a context.Canceled or
	// context.DeadlineExceeded in those cases.
	ReplaceCtx(ctx context.Context, cache Unmarshaler, key string) error
	// ExportCtx writes the binary representation of the cache (cache.Marshal()) to
	// external storage. This is considered opaque.
	// key is the suggested key which can be used for partioning the cache.
	// Context cancellations should be honorted as in ReplaceCtx.
	ExportCtx(ctx context.Context, cache Marshaler, key string) error
}

// ExportReplace is used to export or replace what is in the cache. It must implement a default
// timeout for both Replace and Export. Errors must be retried until the timeout.  A call to Replace
// or Export is not guaranteed to succeed. If creating a new implementation, use ExportReplaceCtx.
type ExportReplace interface {
	// Replace replaces the cache with what is in external storage.
	// key is the suggested key which can be used for partioning the cache
	Replace(cache Unmarshaler, key string)
	// Export writes the binary representation of the cache (cache.Marshal()) to
	// external storage. This is considered opaque.
	// key is the suggested key which can be used for partioning the cache
	Export(cache Marshaler, key string)
}

// TokenCache is the cache as seen by a Plugin.
type TokenCache interface {
	Serializer
	// HasChanged reports if the cache changed since it was last marshaled.
	HasChanged() bool
}

// Context is passed to a Plugin's hooks.
type Context struct {
	// TokenCache is the cache being accessed.
	TokenCache TokenCache
	// HasChanged is TokenCache.HasChanged() when the hook was called.
	HasChanged bool
}

// Plugin is implemented by hosts that persist the cache. BeforeCacheAccess is called before
// every operation that reads or writes the cache. AfterCacheAccess is called after an operation
// changed the cache, and not otherwise. An error from either hook is returned to the caller of
// the operation; changes already made to the in-memory cache are kept.
type Plugin interface {
	BeforeCacheAccess(ctx context.Context, c *Context) error
	AfterCacheAccess(ctx context.Context, c *Context) error
}

// PluginFuncs adapts a pair of functions to a Plugin. A nil func is a no-op.
type PluginFuncs struct {
	Before func(ctx context.Context, c *Context) error
	After  func(ctx context.Context, c *Context) error
}

// BeforeCacheAccess implements Plugin.
func (p PluginFuncs) BeforeCacheAccess(ctx context.Context, c *Context) error {
	if p.Before == nil {
		return nil
	}
	return p.Before(ctx, c)
}

// AfterCacheAccess implements Plugin.
func (p PluginFuncs) AfterCacheAccess(ctx context.Context, c *Context) error {
	if p.After == nil {
		return nil
	}
	return p.After(ctx, c)
}

// FromExportReplace adapts an ExportReplace accessor to a Plugin. key is passed through to
// every Replace and Export call. If er implements ExportReplaceCtx, the Ctx methods are used.
func FromExportReplace(er ExportReplace, key string) Plugin {
	return exportReplacePlugin{er: er, key: key}
}

type exportReplacePlugin struct {
	er  ExportReplace
	key string
}

func (p exportReplacePlugin) BeforeCacheAccess(ctx context.Context, c *Context) error {
	if erc, ok := p.er.(ExportReplaceCtx); ok {
		return erc.ReplaceCtx(ctx, c.TokenCache, p.key)
	}
	p.er.Replace(c.TokenCache, p.key)
	return nil
}

func (p exportReplacePlugin) AfterCacheAccess(ctx context.Context, c *Context) error {
	if erc, ok := p.er.(ExportReplaceCtx); ok {
		return erc.ExportCtx(ctx, c.TokenCache, p.key)
	}
	p.er.Export(c.TokenCache, p.key)
	return nil
}
