// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package storage holds all cached token information for MSAL. This storage can be
// augmented with third-party extensions to provide persistent storage. In that case,
// reads and writes in upper packages will call Marshal() to take the entire in-memory
// representation and write it to storage and Unmarshal() to update the entire in-memory
// storage with what was in the persistent storage. The persistent storage can only be
// accessed in this way because multiple MSAL clients written in multiple languages can
// access the same storage and must adhere to the same method that was defined
// previously.
package storage

import (
	"bytes"
	"context"
	stdJSON "encoding/json"
	"sort"
	"sync"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/logger"
)

// Manager is an in-memory cache of access tokens, accounts and meta data. This data is
// updated on read/write calls. Unmarshal() replaces all data stored here with whatever
// was given to it on each call.
//
// Every call that changes the stored data sets HasChanged and advances Generation.
// Only a successful Marshal clears HasChanged. Authority metadata and throttling entries
// are not part of the persisted data and don't affect either.
type Manager struct {
	contract   *Contract
	contractMu sync.RWMutex
	changed    bool
	generation uint64

	log *logger.Logger

	aadCacheMu sync.RWMutex
	aadCache   map[string]AuthorityMetadata
	throttling map[string]ThrottlingEntity
}

// New is the constructor for Manager. A nil log discards output.
func New(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		contract:   NewContract(),
		log:        log,
		aadCache:   map[string]AuthorityMetadata{},
		throttling: map[string]ThrottlingEntity{},
	}
}

// mutated must be called with contractMu held for writing.
func (m *Manager) mutated() {
	m.changed = true
	m.generation++
}

// HasChanged reports if the stored data changed since the last successful Marshal.
func (m *Manager) HasChanged() bool {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return m.changed
}

// Generation is a counter advanced by every change to the stored data. Comparing two
// values tells a caller if anything changed in between, regardless of Marshal calls.
func (m *Manager) Generation() uint64 {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return m.generation
}

// dropPassthrough removes a passthrough entry that a typed entity is replacing.
// contractMu must be held for writing.
func (m *Manager) dropPassthrough(sec, key string) {
	if entries, ok := m.contract.Passthrough[sec]; ok {
		delete(entries, key)
		if len(entries) == 0 {
			delete(m.contract.Passthrough, sec)
		}
	}
}

// Account returns the account stored under key.
func (m *Manager) Account(key string) (Account, bool) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	v, ok := m.contract.Accounts[key]
	return v, ok
}

// SetAccount stores account under its key, which is returned.
func (m *Manager) SetAccount(account Account) string {
	key := account.Key()
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.Accounts[key] = account
	m.dropPassthrough(SectionAccount, key)
	m.mutated()
	return key
}

// DeleteAccount removes the account stored under key. It reports if there was one.
func (m *Manager) DeleteAccount(key string) bool {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	return deleteEntry(m, m.contract.Accounts, key)
}

// Accounts returns all accounts by key.
func (m *Manager) Accounts() map[string]Account {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return copyMap(m.contract.Accounts)
}

// IDToken returns the ID token stored under key.
func (m *Manager) IDToken(key string) (IDToken, bool) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	v, ok := m.contract.IDTokens[key]
	return v, ok
}

// SetIDToken stores idToken under its key, which is returned.
func (m *Manager) SetIDToken(idToken IDToken) string {
	key := idToken.Key()
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.IDTokens[key] = idToken
	m.dropPassthrough(SectionIDToken, key)
	m.mutated()
	return key
}

// DeleteIDToken removes the ID token stored under key. It reports if there was one.
func (m *Manager) DeleteIDToken(key string) bool {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	return deleteEntry(m, m.contract.IDTokens, key)
}

// IDTokens returns all ID tokens by key.
func (m *Manager) IDTokens() map[string]IDToken {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return copyMap(m.contract.IDTokens)
}

// AccessToken returns the access token stored under key.
func (m *Manager) AccessToken(key string) (AccessToken, bool) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	v, ok := m.contract.AccessTokens[key]
	return v, ok
}

// SetAccessToken stores accessToken under its key, which is returned.
func (m *Manager) SetAccessToken(accessToken AccessToken) string {
	key := accessToken.Key()
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.AccessTokens[key] = accessToken
	m.dropPassthrough(SectionAccessToken, key)
	m.mutated()
	return key
}

// DeleteAccessToken removes the access token stored under key. It reports if there was one.
func (m *Manager) DeleteAccessToken(key string) bool {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	return deleteEntry(m, m.contract.AccessTokens, key)
}

// AccessTokens returns all access tokens by key.
func (m *Manager) AccessTokens() map[string]AccessToken {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return copyMap(m.contract.AccessTokens)
}

// RefreshToken returns the refresh token stored under key.
func (m *Manager) RefreshToken(key string) (RefreshToken, bool) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	v, ok := m.contract.RefreshTokens[key]
	return v, ok
}

// SetRefreshToken stores refreshToken under its key, which is returned.
func (m *Manager) SetRefreshToken(refreshToken RefreshToken) string {
	key := refreshToken.Key()
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.RefreshTokens[key] = refreshToken
	m.dropPassthrough(SectionRefreshToken, key)
	m.mutated()
	return key
}

// DeleteRefreshToken removes the refresh token stored under key. It reports if there was one.
func (m *Manager) DeleteRefreshToken(key string) bool {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	return deleteEntry(m, m.contract.RefreshTokens, key)
}

// RefreshTokens returns all refresh tokens by key.
func (m *Manager) RefreshTokens() map[string]RefreshToken {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return copyMap(m.contract.RefreshTokens)
}

// AppMetaData returns the app metadata stored under key.
func (m *Manager) AppMetaData(key string) (AppMetaData, bool) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	v, ok := m.contract.AppMetaData[key]
	return v, ok
}

// SetAppMetaData stores appMetaData under its key, which is returned.
func (m *Manager) SetAppMetaData(appMetaData AppMetaData) string {
	key := appMetaData.Key()
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.AppMetaData[key] = appMetaData
	m.dropPassthrough(SectionAppMetadata, key)
	m.mutated()
	return key
}

// DeleteAppMetaData removes the app metadata stored under key. It reports if there was one.
func (m *Manager) DeleteAppMetaData(key string) bool {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	return deleteEntry(m, m.contract.AppMetaData, key)
}

// AllAppMetaData returns all app metadata by key.
func (m *Manager) AllAppMetaData() map[string]AppMetaData {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return copyMap(m.contract.AppMetaData)
}

// deleteEntry must be called with contractMu held for writing.
func deleteEntry[T any](m *Manager, entries map[string]T, key string) bool {
	if _, ok := entries[key]; !ok {
		return false
	}
	delete(entries, key)
	m.mutated()
	return true
}

func copyMap[T any](src map[string]T) map[string]T {
	dst := make(map[string]T, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Passthrough returns the entries of recognized sections that were kept as raw JSON,
// indexed by section and then key.
func (m *Manager) Passthrough() map[string]map[string]stdJSON.RawMessage {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	out := make(map[string]map[string]stdJSON.RawMessage, len(m.contract.Passthrough))
	for sec, entries := range m.contract.Passthrough {
		out[sec] = copyMap(entries)
	}
	return out
}

// UnknownSections returns the top level sections that were kept as raw JSON.
func (m *Manager) UnknownSections() map[string]stdJSON.RawMessage {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	out := make(map[string]stdJSON.RawMessage, len(m.contract.AdditionalFields))
	for k, v := range m.contract.AdditionalFields {
		switch v := v.(type) {
		case stdJSON.RawMessage:
			out[k] = v
		default:
			b, err := stdJSON.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = b
		}
	}
	return out
}

// SectionLen returns the number of entries in a recognized section, passthrough entries included.
func (m *Manager) SectionLen(section string) int {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return m.contract.len(section)
}

// ForeignKeys returns the sorted keys of section's entities that don't decode to the entity's
// own identifying fields, such as keys written by an SDK with other key rules. Passthrough
// entries are not checked.
func (m *Manager) ForeignKeys(section string) []string {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	c := m.contract
	var keys []string
	switch section {
	case SectionAccount:
		keys = foreignKeys(c.Accounts, ParseAccountKey)
	case SectionIDToken:
		keys = foreignKeys(c.IDTokens, ParseCredentialKey)
	case SectionAccessToken:
		keys = foreignKeys(c.AccessTokens, ParseCredentialKey)
	case SectionRefreshToken:
		keys = foreignKeys(c.RefreshTokens, ParseCredentialKey)
	case SectionAppMetadata:
		keys = foreignKeys(c.AppMetaData, ParseAppMetadataKey)
	}
	sort.Strings(keys)
	return keys
}

// KV returns every entry of the recognized sections by key. Entities are returned as their
// typed values and passthrough entries as json.RawMessage. Unknown top level sections are
// not included. Keys are not qualified by section, so when two sections hold the same key
// only one of the entries is returned.
func (m *Manager) KV() map[string]any {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	c := m.contract
	kv := make(map[string]any)
	for _, entries := range c.Passthrough {
		for k, v := range entries {
			kv[k] = v
		}
	}
	for k, v := range c.Accounts {
		kv[k] = v
	}
	for k, v := range c.IDTokens {
		kv[k] = v
	}
	for k, v := range c.AccessTokens {
		kv[k] = v
	}
	for k, v := range c.RefreshTokens {
		kv[k] = v
	}
	for k, v := range c.AppMetaData {
		kv[k] = v
	}
	return kv
}

// AuthorityMetadata returns the metadata stored for an authority host.
func (m *Manager) AuthorityMetadata(key string) (AuthorityMetadata, bool) {
	m.aadCacheMu.RLock()
	defer m.aadCacheMu.RUnlock()
	v, ok := m.aadCache[key]
	return v, ok
}

// SetAuthorityMetadata stores metadata for an authority host.
func (m *Manager) SetAuthorityMetadata(key string, metadata AuthorityMetadata) {
	m.aadCacheMu.Lock()
	defer m.aadCacheMu.Unlock()
	m.aadCache[key] = metadata
}

// Throttling returns the throttling entry stored under key.
func (m *Manager) Throttling(key string) (ThrottlingEntity, bool) {
	m.aadCacheMu.RLock()
	defer m.aadCacheMu.RUnlock()
	v, ok := m.throttling[key]
	return v, ok
}

// SetThrottling stores a throttling entry under key.
func (m *Manager) SetThrottling(key string, entity ThrottlingEntity) {
	m.aadCacheMu.Lock()
	defer m.aadCacheMu.Unlock()
	m.throttling[key] = entity
}

// DeleteThrottling removes the throttling entry stored under key.
func (m *Manager) DeleteThrottling(key string) {
	m.aadCacheMu.Lock()
	defer m.aadCacheMu.Unlock()
	delete(m.throttling, key)
}

// update updates the internal cache object. This is for use in tests, other uses are not
// supported.
func (m *Manager) update(cache *Contract) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract = cache
}

// Marshal implements cache.Marshaler. A successful call clears HasChanged.
func (m *Manager) Marshal() ([]byte, error) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()

	b, err := stdJSON.Marshal(m.contract)
	if err != nil {
		return nil, err
	}
	m.changed = false
	return b, nil
}

// Unmarshal implements cache.Unmarshaler. Empty input leaves the stored data as it is.
// Input that isn't a JSON object is logged and replaces the stored data with an empty
// cache, so a corrupt cache file never fails the caller. The returned error is always nil.
func (m *Manager) Unmarshal(b []byte) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	contract := NewContract()
	if err := stdJSON.Unmarshal(b, contract); err != nil {
		m.log.Log(context.Background(), logger.Warn, "cache data could not be parsed and was discarded", logger.Field("error", err.Error()))
		contract = NewContract()
	}

	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract = contract
	m.mutated()
	return nil
}
