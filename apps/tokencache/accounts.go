// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package tokencache

import (
	"context"
	"sort"
	"strings"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/errors"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/idtoken"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/logger"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/storage"
	"github.com/golang-jwt/jwt/v5"
)

// ErrAccountNotFound is returned when the cache holds no matching account.
var ErrAccountNotFound = errors.New("account not found in the token cache")

// Account is a signed-in user in one tenant.
type Account struct {
	HomeAccountID  string
	Environment    string
	Realm          string
	LocalAccountID string
	Username       string
	AuthorityType  string
	Name           string

	// IDTokenClaims are the claims of the account's ID token. nil when the cache holds no
	// ID token for the account or it could not be decoded.
	IDTokenClaims jwt.MapClaims
}

// IsZero reports if a is the zero value.
func (a Account) IsZero() bool {
	return a.HomeAccountID == "" && a.Environment == "" && a.Realm == "" && a.LocalAccountID == ""
}

// Accounts returns every account in the cache, ordered by cache key.
func (t *TokenCache) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := t.access(ctx, "Accounts", func(log *logger.Logger) error {
		accounts = t.accounts(ctx, log)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// AccountByHomeID returns the account with homeAccountID. If it has accounts in several
// tenants, the one with the lowest cache key is returned.
func (t *TokenCache) AccountByHomeID(ctx context.Context, homeAccountID string) (Account, error) {
	return t.find(ctx, "AccountByHomeID", func(a Account) bool {
		return strings.EqualFold(a.HomeAccountID, homeAccountID)
	})
}

// AccountByLocalID returns the account whose local account id, or ID token oid, is localAccountID.
func (t *TokenCache) AccountByLocalID(ctx context.Context, localAccountID string) (Account, error) {
	return t.find(ctx, "AccountByLocalID", func(a Account) bool {
		if strings.EqualFold(a.LocalAccountID, localAccountID) {
			return true
		}
		return a.IDTokenClaims != nil && strings.EqualFold(idtoken.Claims{MapClaims: a.IDTokenClaims}.LocalAccountID(), localAccountID)
	})
}

func (t *TokenCache) find(ctx context.Context, name string, match func(Account) bool) (Account, error) {
	var found Account
	err := t.access(ctx, name, func(log *logger.Logger) error {
		for _, a := range t.accounts(ctx, log) {
			if match(a) {
				found = a
				return nil
			}
		}
		return ErrAccountNotFound
	})
	return found, err
}

// RemoveAccount removes account and every ID, access and refresh token of its home account
// in its environment. App metadata and entries the cache doesn't recognize are kept.
// Removing an account that isn't cached does nothing and is not an error. If account.Realm
// is empty, the account is removed from every tenant.
func (t *TokenCache) RemoveAccount(ctx context.Context, account Account) error {
	return t.access(ctx, "RemoveAccount", func(log *logger.Logger) error {
		r := t.manager.RemoveAccount(account.HomeAccountID, account.Environment, account.Realm)
		log.Log(ctx, logger.Info, "removed account",
			logger.Field("accounts", len(r.Accounts)),
			logger.Field("id_tokens", len(r.IDTokens)),
			logger.Field("access_tokens", len(r.AccessTokens)),
			logger.Field("refresh_tokens", len(r.RefreshTokens)),
		)
		log.LogPII(ctx, logger.Debug, "removed account", logger.Field("home_account_id", account.HomeAccountID))
		return nil
	})
}

// accounts reads the accounts in the store. It never changes the store.
func (t *TokenCache) accounts(ctx context.Context, log *logger.Logger) []Account {
	stored := t.manager.Accounts()
	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	idTokens := t.manager.IDTokens()
	idKeys := make([]string, 0, len(idTokens))
	for k := range idTokens {
		idKeys = append(idKeys, k)
	}
	sort.Strings(idKeys)

	accounts := make([]Account, 0, len(keys))
	for _, k := range keys {
		s := stored[k]
		a := Account{
			HomeAccountID:  s.HomeAccountID,
			Environment:    s.Environment,
			Realm:          s.Realm,
			LocalAccountID: s.LocalAccountID,
			Username:       s.PreferredUsername,
			AuthorityType:  s.AuthorityType,
			Name:           s.Name,
		}
		for _, ik := range idKeys {
			if !t.idTokenFor(s, idTokens[ik]) {
				continue
			}
			claims, err := idtoken.Parse(idTokens[ik].Secret, t.decoder)
			if err != nil {
				log.Log(ctx, logger.Warn, "cached ID token could not be decoded", logger.Field("error", err))
				log.LogPII(ctx, logger.Warn, "cached ID token could not be decoded", logger.Field("key", ik))
				break
			}
			a.IDTokenClaims = claims.MapClaims
			if a.Name == "" {
				a.Name = claims.Name()
			}
			break
		}
		accounts = append(accounts, a)
	}
	return accounts
}

func (t *TokenCache) idTokenFor(a storage.Account, id storage.IDToken) bool {
	if t.clientID != "" && !strings.EqualFold(id.ClientID, t.clientID) {
		return false
	}
	return strings.EqualFold(a.HomeAccountID, id.HomeAccountID) &&
		strings.EqualFold(a.Environment, id.Environment) &&
		strings.EqualFold(a.Realm, id.Realm)
}
