// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// CacheKeySeparator is used in creating the keys of the cache.
const CacheKeySeparator = "-"

const appMetadataKeyPrefix = "appmetadata"

// guid matches GUIDs, which contain the key separator. Client IDs, tenant IDs and the parts of
// a home account ID are usually GUIDs.
var guid = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// credentialTypes maps the lowercased key segment of a credential type to its canonical form.
var credentialTypes = map[string]string{
	strings.ToLower(CredentialTypeIDToken):                   CredentialTypeIDToken,
	strings.ToLower(CredentialTypeAccessToken):               CredentialTypeAccessToken,
	strings.ToLower(CredentialTypeAccessTokenWithAuthScheme): CredentialTypeAccessTokenWithAuthScheme,
	strings.ToLower(CredentialTypeRefreshToken):              CredentialTypeRefreshToken,
}

func joinKey(parts ...string) string {
	return strings.ToLower(strings.Join(parts, CacheKeySeparator))
}

// Key creates the key for storing accounts in the cache.
func (acc Account) Key() string {
	return joinKey(acc.HomeAccountID, acc.Environment, acc.Realm)
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (id IDToken) Key() string {
	return joinKey(id.HomeAccountID, id.Environment, CredentialTypeIDToken, id.ClientID, id.Realm, "")
}

// Key outputs the key that can be used to uniquely look up this entry in a map. The claims hash
// and scheme segments are only present when one of them is set, which keeps bearer token keys
// readable by older MSAL versions.
func (a AccessToken) Key() string {
	ct := a.CredentialType
	if ct == "" {
		ct = CredentialTypeAccessToken
	}
	parts := []string{a.HomeAccountID, a.Environment, ct, a.ClientID, a.Realm, a.Scopes}
	if a.RequestedClaimsHash != "" || a.scheme() != "" {
		parts = append(parts, a.RequestedClaimsHash, a.scheme())
	}
	return joinKey(parts...)
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
// Refresh tokens that belong to a family are keyed by the family ID rather than the client.
func (rt RefreshToken) Key() string {
	id := rt.ClientID
	if rt.FamilyID != "" {
		id = rt.FamilyID
	}
	return joinKey(rt.HomeAccountID, rt.Environment, CredentialTypeRefreshToken, id, "", "")
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AppMetaData) Key() string {
	return joinKey(appMetadataKeyPrefix, a.Environment, a.ClientID)
}

// KeyParts holds the identifying fields recovered from a cache key. Keys are lowercase, so
// the parts are too.
type KeyParts struct {
	HomeAccountID  string
	Environment    string
	Realm          string
	CredentialType string
	// ClientID is the family ID for refresh tokens keyed by family.
	ClientID            string
	Target              string
	RequestedClaimsHash string
	Scheme              string
}

var errKeyFormat = errors.New("malformed cache key")

// splitKey splits a key on the separator without breaking GUIDs apart.
func splitKey(key string) []string {
	const hold = "\x00"
	protected := guid.ReplaceAllStringFunc(key, func(s string) string {
		return strings.ReplaceAll(s, CacheKeySeparator, hold)
	})
	parts := strings.Split(protected, CacheKeySeparator)
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, hold, CacheKeySeparator)
	}
	return parts
}

func joinParts(parts []string) string {
	return strings.Join(parts, CacheKeySeparator)
}

// splitHomeAccount splits the leading segments of a key into a home account ID and an
// environment. Home account IDs have the form uid.utid, so the ID ends at the first segment
// containing a dot if a segment is left for the environment. Otherwise the environment is the
// last segment. A home account ID without a dot and an environment containing the separator
// can't both be recovered.
func splitHomeAccount(parts []string) (homeAccountID, env string) {
	end := len(parts) - 1
	for i := 0; i < len(parts)-1; i++ {
		if strings.Contains(parts[i], ".") {
			end = i + 1
			break
		}
	}
	return joinParts(parts[:end]), joinParts(parts[end:])
}

// ParseAccountKey is the inverse of Account.Key. The realm is the last segment.
func ParseAccountKey(key string) (KeyParts, error) {
	parts := splitKey(key)
	if len(parts) < 3 {
		return KeyParts{}, fmt.Errorf("account key %q: %w", key, errKeyFormat)
	}
	n := len(parts)
	hid, env := splitHomeAccount(parts[:n-1])
	return KeyParts{HomeAccountID: hid, Environment: env, Realm: parts[n-1]}, nil
}

// ParseCredentialKey is the inverse of IDToken.Key, AccessToken.Key and RefreshToken.Key.
//
// ID token and refresh token keys end in empty segments, so their client IDs are recovered
// even when they contain the separator. An access token's client ID is a single segment
// unless it is a GUID, because the target may contain the separator too. Keys without the
// trailing segments decode with them left empty. A target containing two or more separators
// is only recovered when the claims hash and scheme segments are present.
func ParseCredentialKey(key string) (KeyParts, error) {
	parts := splitKey(key)

	at := -1
	for i := 2; i < len(parts); i++ {
		if _, ok := credentialTypes[strings.ToLower(parts[i])]; ok {
			at = i
			break
		}
	}
	if at < 0 {
		return KeyParts{}, fmt.Errorf("credential key %q: %w", key, errKeyFormat)
	}

	kp := KeyParts{CredentialType: credentialTypes[strings.ToLower(parts[at])]}
	kp.HomeAccountID, kp.Environment = splitHomeAccount(parts[:at])
	rest := parts[at+1:]

	switch kp.CredentialType {
	case CredentialTypeRefreshToken:
		// The realm and target segments are always empty.
		for i := 0; i < 2 && len(rest) > 1 && rest[len(rest)-1] == ""; i++ {
			rest = rest[:len(rest)-1]
		}
		kp.ClientID = joinParts(rest)
	case CredentialTypeIDToken:
		// The target segment is always empty.
		if n := len(rest); n >= 3 && rest[n-1] == "" {
			rest = rest[:n-1]
		}
		if n := len(rest); n >= 2 {
			kp.ClientID = joinParts(rest[:n-1])
			kp.Realm = rest[n-1]
		} else {
			kp.ClientID = joinParts(rest)
		}
	default:
		kp.parseAccessToken(rest)
	}
	if kp.ClientID == "" {
		return KeyParts{}, fmt.Errorf("credential key %q: %w", key, errKeyFormat)
	}
	return kp, nil
}

// parseAccessToken fills kp from the segments after the credential type of an access token key.
func (kp *KeyParts) parseAccessToken(rest []string) {
	if len(rest) == 0 {
		return
	}
	kp.ClientID, rest = rest[0], rest[1:]
	if len(rest) == 0 {
		return
	}
	kp.Realm, rest = rest[0], rest[1:]

	// ssh-cert is the only scheme that contains the separator.
	if n := len(rest); n >= 4 && rest[n-2] == "ssh" && rest[n-1] == "cert" {
		rest = append(rest[:n-2:n-2], "ssh-cert")
	}
	if n := len(rest); n >= 3 {
		kp.Target = joinParts(rest[:n-2])
		kp.RequestedClaimsHash = rest[n-2]
		kp.Scheme = rest[n-1]
		return
	}
	kp.Target = joinParts(rest)
}

// ParseAppMetadataKey is the inverse of AppMetaData.Key. The environment ends at its first
// segment containing a dot, so both it and the client ID may contain the separator.
func ParseAppMetadataKey(key string) (KeyParts, error) {
	parts := splitKey(key)
	if len(parts) < 3 || !strings.EqualFold(parts[0], appMetadataKeyPrefix) {
		return KeyParts{}, fmt.Errorf("app metadata key %q: %w", key, errKeyFormat)
	}
	end := 2
	for i := 1; i < len(parts)-1; i++ {
		if strings.Contains(parts[i], ".") {
			end = i + 1
			break
		}
	}
	return KeyParts{
		Environment: joinParts(parts[1:end]),
		ClientID:    joinParts(parts[end:]),
	}, nil
}

// keyParts are the identifying fields of acc, as ParseAccountKey returns them.
func (acc Account) keyParts() KeyParts {
	return KeyParts{
		HomeAccountID: strings.ToLower(acc.HomeAccountID),
		Environment:   strings.ToLower(acc.Environment),
		Realm:         strings.ToLower(acc.Realm),
	}
}

func (id IDToken) keyParts() KeyParts {
	return KeyParts{
		HomeAccountID:  strings.ToLower(id.HomeAccountID),
		Environment:    strings.ToLower(id.Environment),
		CredentialType: CredentialTypeIDToken,
		ClientID:       strings.ToLower(id.ClientID),
		Realm:          strings.ToLower(id.Realm),
	}
}

func (a AccessToken) keyParts() KeyParts {
	ct := a.CredentialType
	if ct == "" {
		ct = CredentialTypeAccessToken
	}
	return KeyParts{
		HomeAccountID:       strings.ToLower(a.HomeAccountID),
		Environment:         strings.ToLower(a.Environment),
		CredentialType:      ct,
		ClientID:            strings.ToLower(a.ClientID),
		Realm:               strings.ToLower(a.Realm),
		Target:              strings.ToLower(a.Scopes),
		RequestedClaimsHash: strings.ToLower(a.RequestedClaimsHash),
		Scheme:              a.scheme(),
	}
}

func (rt RefreshToken) keyParts() KeyParts {
	id := rt.ClientID
	if rt.FamilyID != "" {
		id = rt.FamilyID
	}
	return KeyParts{
		HomeAccountID:  strings.ToLower(rt.HomeAccountID),
		Environment:    strings.ToLower(rt.Environment),
		CredentialType: CredentialTypeRefreshToken,
		ClientID:       strings.ToLower(id),
	}
}

func (a AppMetaData) keyParts() KeyParts {
	return KeyParts{
		Environment: strings.ToLower(a.Environment),
		ClientID:    strings.ToLower(a.ClientID),
	}
}

// foreignKeys returns the keys in entries that don't decode to their entity's fields.
func foreignKeys[T interface{ keyParts() KeyParts }](entries map[string]T, parse func(string) (KeyParts, error)) []string {
	var keys []string
	for k, v := range entries {
		if got, err := parse(k); err != nil || got != v.keyParts() {
			keys = append(keys, k)
		}
	}
	return keys
}
