// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package tokencache

import (
	"context"
	"strings"
	"time"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/logger"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/storage"
)

// Entities as they are stored in the cache.
type (
	AccountEntity      = storage.Account
	IDTokenEntity      = storage.IDToken
	AccessTokenEntity  = storage.AccessToken
	RefreshTokenEntity = storage.RefreshToken
	AppMetadataEntity  = storage.AppMetaData
)

// NewAccountEntity is the constructor for AccountEntity.
func NewAccountEntity(homeAccountID, env, realm, localAccountID, authorityType, username string) AccountEntity {
	return storage.NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username)
}

// NewIDTokenEntity is the constructor for IDTokenEntity.
func NewIDTokenEntity(homeAccountID, env, realm, clientID, idToken string) IDTokenEntity {
	return storage.NewIDToken(homeAccountID, env, realm, clientID, idToken)
}

// NewAccessTokenEntity is the constructor for AccessTokenEntity. scopes are space separated.
func NewAccessTokenEntity(homeAccountID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes, token string) AccessTokenEntity {
	return storage.NewAccessToken(homeAccountID, env, realm, clientID, cachedAt, expiresOn, extendedExpiresOn, scopes, token)
}

// NewRefreshTokenEntity is the constructor for RefreshTokenEntity. familyID may be empty.
func NewRefreshTokenEntity(homeAccountID, env, clientID, refreshToken, familyID string) RefreshTokenEntity {
	return storage.NewRefreshToken(homeAccountID, env, clientID, refreshToken, familyID)
}

// NewAppMetadataEntity is the constructor for AppMetadataEntity.
func NewAppMetadataEntity(familyID, clientID, env string) AppMetadataEntity {
	return storage.NewAppMetaData(familyID, clientID, env)
}

// CacheRecord holds the entities produced by one token response. Nil fields are skipped.
type CacheRecord struct {
	Account      *AccountEntity
	IDToken      *IDTokenEntity
	AccessToken  *AccessTokenEntity
	RefreshToken *RefreshTokenEntity
	AppMetadata  *AppMetadataEntity
}

// SaveCacheRecord writes the entities of r. An entity replaces the one with the same key.
// Cached access tokens of the same account, client, tenant, token type and claims whose
// scopes overlap r.AccessToken's are removed first.
func (t *TokenCache) SaveCacheRecord(ctx context.Context, r CacheRecord) error {
	return t.access(ctx, "SaveCacheRecord", func(log *logger.Logger) error {
		if r.Account != nil {
			t.manager.SetAccount(*r.Account)
		}
		if r.IDToken != nil {
			t.manager.SetIDToken(*r.IDToken)
		}
		if r.AccessToken != nil {
			n := 0
			for k, at := range t.manager.AccessTokens() {
				if supersedes(*r.AccessToken, at) && t.manager.DeleteAccessToken(k) {
					n++
				}
			}
			if n > 0 {
				log.Log(ctx, logger.Debug, "removed access tokens with overlapping scopes", logger.Field("count", n))
			}
			t.manager.SetAccessToken(*r.AccessToken)
		}
		if r.RefreshToken != nil {
			t.manager.SetRefreshToken(*r.RefreshToken)
		}
		if r.AppMetadata != nil {
			t.manager.SetAppMetaData(*r.AppMetadata)
		}
		return nil
	})
}

// supersedes reports if saving next makes the cached token prev obsolete.
func supersedes(next, prev AccessTokenEntity) bool {
	same := func(a, b string) bool { return strings.EqualFold(a, b) }
	if !same(next.HomeAccountID, prev.HomeAccountID) || !same(next.Environment, prev.Environment) ||
		!same(next.CredentialType, prev.CredentialType) || !same(next.ClientID, prev.ClientID) ||
		!same(next.Realm, prev.Realm) || !same(next.RequestedClaimsHash, prev.RequestedClaimsHash) ||
		!same(normalTokenType(next.TokenType), normalTokenType(prev.TokenType)) {
		return false
	}
	return scopesIntersect(next.Scopes, prev.Scopes)
}

func normalTokenType(tt string) string {
	if tt == "" {
		return "bearer"
	}
	return tt
}

// oidcScopes are requested with most tokens, so sharing them doesn't make two tokens overlap.
var oidcScopes = map[string]bool{"openid": true, "profile": true, "offline_access": true}

func scopesIntersect(a, b string) bool {
	set := map[string]bool{}
	for _, s := range strings.Fields(strings.ToLower(a)) {
		if !oidcScopes[s] {
			set[s] = true
		}
	}
	for _, s := range strings.Fields(strings.ToLower(b)) {
		if set[s] {
			return true
		}
	}
	return false
}
