// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import "strings"

// Removal is the set of keys, by section, that removing an account deletes.
type Removal struct {
	Accounts      []string
	IDTokens      []string
	AccessTokens  []string
	RefreshTokens []string
}

// Len is the number of keys in r.
func (r Removal) Len() int {
	return len(r.Accounts) + len(r.IDTokens) + len(r.AccessTokens) + len(r.RefreshTokens)
}

// RemovalSet computes what removing an account deletes from c: the accounts of homeAccountID
// in environment (only the one in realm, unless realm is empty), and every ID, access and
// refresh token of homeAccountID in environment. App metadata and passthrough data are never
// part of the set. Comparisons ignore case, as keys do.
func RemovalSet(c *Contract, homeAccountID, environment, realm string) Removal {
	owned := func(hid, env string) bool {
		return strings.EqualFold(hid, homeAccountID) && strings.EqualFold(env, environment)
	}

	var r Removal
	for k, v := range c.Accounts {
		if owned(v.HomeAccountID, v.Environment) && (realm == "" || strings.EqualFold(v.Realm, realm)) {
			r.Accounts = append(r.Accounts, k)
		}
	}
	for k, v := range c.IDTokens {
		if owned(v.HomeAccountID, v.Environment) {
			r.IDTokens = append(r.IDTokens, k)
		}
	}
	for k, v := range c.AccessTokens {
		if owned(v.HomeAccountID, v.Environment) {
			r.AccessTokens = append(r.AccessTokens, k)
		}
	}
	for k, v := range c.RefreshTokens {
		if owned(v.HomeAccountID, v.Environment) {
			r.RefreshTokens = append(r.RefreshTokens, k)
		}
	}
	return r
}

// RemoveAccount deletes an account and the tokens that belong to it, as computed by RemovalSet.
// Removing an account that isn't stored does nothing and doesn't count as a change.
func (m *Manager) RemoveAccount(homeAccountID, environment, realm string) Removal {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()

	r := RemovalSet(m.contract, homeAccountID, environment, realm)
	for _, k := range r.Accounts {
		delete(m.contract.Accounts, k)
	}
	for _, k := range r.IDTokens {
		delete(m.contract.IDTokens, k)
	}
	for _, k := range r.AccessTokens {
		delete(m.contract.AccessTokens, k)
	}
	for _, k := range r.RefreshTokens {
		delete(m.contract.RefreshTokens, k)
	}
	if r.Len() > 0 {
		m.mutated()
	}
	return r
}
