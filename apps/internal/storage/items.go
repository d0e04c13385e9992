// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"strings"
	"time"

	internalTime "github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/json/types/time"
)

// Credential types written to the credential_type field.
const (
	CredentialTypeIDToken                   = "IdToken"
	CredentialTypeAccessToken               = "AccessToken"
	CredentialTypeAccessTokenWithAuthScheme = "AccessToken_With_AuthScheme"
	CredentialTypeRefreshToken              = "RefreshToken"
)

// Authority types written to an Account's authority_type field.
const (
	AuthorityTypeMSSTS   = "MSSTS"
	AuthorityTypeADFS    = "ADFS"
	AuthorityTypeGeneric = "Generic"
)

const tokenTypeBearer = "bearer"

// Account is the JSON representation of an MSAL account for encoding to storage.
type Account struct {
	HomeAccountID        string `json:"home_account_id"`
	Environment          string `json:"environment"`
	Realm                string `json:"realm"`
	LocalAccountID       string `json:"local_account_id"`
	PreferredUsername    string `json:"username"`
	AuthorityType        string `json:"authority_type"`
	Name                 string `json:"name,omitempty"`
	RawClientInfo        string `json:"client_info,omitempty"`
	LastModificationTime string `json:"last_modification_time,omitempty"`
	LastModificationApp  string `json:"last_modification_app,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewAccount creates an account.
func NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username string) Account {
	return Account{
		HomeAccountID:     homeAccountID,
		Environment:       env,
		Realm:             realm,
		LocalAccountID:    localAccountID,
		AuthorityType:     authorityType,
		PreferredUsername: username,
	}
}

// IDToken is the JSON representation of an MSAL id token for encoding to storage.
type IDToken struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	CredentialType string `json:"credential_type"`
	ClientID       string `json:"client_id"`
	Secret         string `json:"secret"`
	Realm          string `json:"realm"`

	AdditionalFields map[string]interface{}
}

// NewIDToken is the constructor for IDToken.
func NewIDToken(homeID, env, realm, clientID, idToken string) IDToken {
	return IDToken{
		HomeAccountID:  homeID,
		Environment:    env,
		Realm:          realm,
		CredentialType: CredentialTypeIDToken,
		ClientID:       clientID,
		Secret:         idToken,
	}
}

// AccessToken is the JSON representation of a MSAL access token for encoding to storage.
type AccessToken struct {
	HomeAccountID       string            `json:"home_account_id"`
	Environment         string            `json:"environment"`
	CredentialType      string            `json:"credential_type"`
	ClientID            string            `json:"client_id"`
	Secret              string            `json:"secret"`
	Realm               string            `json:"realm"`
	Scopes              string            `json:"target"`
	CachedAt            internalTime.Unix `json:"cached_at"`
	ExpiresOn           internalTime.Unix `json:"expires_on"`
	ExtendedExpiresOn   internalTime.Unix `json:"extended_expires_on,omitempty"`
	RefreshOn           internalTime.Unix `json:"refresh_on,omitempty"`
	TokenType           string            `json:"token_type,omitempty"`
	KeyID               string            `json:"key_id,omitempty"`
	RequestedClaims     string            `json:"requestedClaims,omitempty"`
	RequestedClaimsHash string            `json:"requestedClaimsHash,omitempty"`
	UserAssertionHash   string            `json:"userAssertionHash,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewAccessToken is the constructor for AccessToken.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes, token string) AccessToken {
	return AccessToken{
		HomeAccountID:     homeID,
		Environment:       env,
		Realm:             realm,
		CredentialType:    CredentialTypeAccessToken,
		ClientID:          clientID,
		Secret:            token,
		Scopes:            scopes,
		CachedAt:          internalTime.NewUnix(cachedAt),
		ExpiresOn:         internalTime.NewUnix(expiresOn),
		ExtendedExpiresOn: internalTime.NewUnix(extendedExpiresOn),
	}
}

// scheme is the key segment for the token's authentication scheme. Bearer tokens use "".
func (a AccessToken) scheme() string {
	if a.TokenType == "" || strings.EqualFold(a.TokenType, tokenTypeBearer) {
		return ""
	}
	return strings.ToLower(a.TokenType)
}

// RefreshToken is the JSON representation of a MSAL refresh token for encoding to storage.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	CredentialType string `json:"credential_type"`
	ClientID       string `json:"client_id"`
	Secret         string `json:"secret"`
	FamilyID       string `json:"family_id,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewRefreshToken is the constructor for RefreshToken.
func NewRefreshToken(homeID, env, clientID, refreshToken, familyID string) RefreshToken {
	return RefreshToken{
		HomeAccountID:  homeID,
		Environment:    env,
		CredentialType: CredentialTypeRefreshToken,
		ClientID:       clientID,
		Secret:         refreshToken,
		FamilyID:       familyID,
	}
}

// AppMetaData is the JSON representation of application metadata for encoding to storage.
type AppMetaData struct {
	ClientID    string `json:"client_id"`
	Environment string `json:"environment"`
	FamilyID    string `json:"family_id,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewAppMetaData is the constructor for AppMetaData.
func NewAppMetaData(familyID, clientID, environment string) AppMetaData {
	return AppMetaData{
		FamilyID:    familyID,
		ClientID:    clientID,
		Environment: environment,
	}
}

// AuthorityMetadata caches instance discovery results for an authority host. It only lives in
// memory and is never written by Marshal.
type AuthorityMetadata struct {
	Aliases               []string
	PreferredCache        string
	PreferredNetwork      string
	CanonicalAuthority    string
	AuthorizationEndpoint string
	TokenEndpoint         string
	EndSessionEndpoint    string
	Issuer                string
	ExpiresAt             time.Time
}

// Expired reports if the metadata must be refreshed.
func (a AuthorityMetadata) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// ThrottlingEntity records a server instruction to back off. It only lives in memory.
type ThrottlingEntity struct {
	ThrottleTime time.Time
	Error        string
	ErrorCodes   []string
	ErrorMessage string
	SubError     string
}
