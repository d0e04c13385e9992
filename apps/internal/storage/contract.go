// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	stdJSON "encoding/json"
	"fmt"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/json"
)

// Section names of the persisted document.
const (
	SectionAccount      = "Account"
	SectionIDToken      = "IdToken"
	SectionAccessToken  = "AccessToken"
	SectionRefreshToken = "RefreshToken"
	SectionAppMetadata  = "AppMetadata"
)

// Sections lists the recognized sections in the order they are reported.
var Sections = []string{SectionAccount, SectionIDToken, SectionAccessToken, SectionRefreshToken, SectionAppMetadata}

// requiredFields are the fields an entry must carry as JSON strings to be decoded as its kind.
var requiredFields = map[string][]string{
	SectionAccount:      {"home_account_id", "environment", "realm", "local_account_id", "username", "authority_type"},
	SectionIDToken:      {"home_account_id", "environment", "credential_type", "client_id", "secret", "realm"},
	SectionAccessToken:  {"home_account_id", "environment", "credential_type", "client_id", "secret", "realm", "target", "cached_at", "expires_on"},
	SectionRefreshToken: {"home_account_id", "environment", "credential_type", "client_id", "secret"},
	SectionAppMetadata:  {"client_id", "environment"},
}

// credentialTypesBySection are the credential_type values allowed in each credential section.
var credentialTypesBySection = map[string][]string{
	SectionIDToken:      {CredentialTypeIDToken},
	SectionAccessToken:  {CredentialTypeAccessToken, CredentialTypeAccessTokenWithAuthScheme},
	SectionRefreshToken: {CredentialTypeRefreshToken},
}

// Contract is the JSON structure that is written to any storage medium when serializing
// the internal cache. This design is shared between MSAL versions in many languages.
// This cannot be changed without design that includes other SDKs.
//
// Entries are stored under the key they were read with. Entries of a recognized section that
// are not valid for the section's kind are kept in Passthrough, and sections this package does
// not know are kept in AdditionalFields. Both are written back unchanged.
type Contract struct {
	AccessTokens  map[string]AccessToken
	RefreshTokens map[string]RefreshToken
	IDTokens      map[string]IDToken
	Accounts      map[string]Account
	AppMetaData   map[string]AppMetaData

	// Passthrough is indexed by section name, then entry key.
	Passthrough map[string]map[string]stdJSON.RawMessage

	AdditionalFields map[string]interface{}

	// present records the recognized sections of the document this was decoded from.
	// It is nil for a contract that was never decoded.
	present map[string]bool
}

// NewContract is the constructor for Contract.
func NewContract() *Contract {
	return &Contract{
		AccessTokens:     map[string]AccessToken{},
		RefreshTokens:    map[string]RefreshToken{},
		IDTokens:         map[string]IDToken{},
		Accounts:         map[string]Account{},
		AppMetaData:      map[string]AppMetaData{},
		Passthrough:      map[string]map[string]stdJSON.RawMessage{},
		AdditionalFields: map[string]interface{}{},
	}
}

// len returns the number of entries in section sec, including passthrough entries.
func (c *Contract) len(sec string) int {
	n := len(c.Passthrough[sec])
	switch sec {
	case SectionAccount:
		n += len(c.Accounts)
	case SectionIDToken:
		n += len(c.IDTokens)
	case SectionAccessToken:
		n += len(c.AccessTokens)
	case SectionRefreshToken:
		n += len(c.RefreshTokens)
	case SectionAppMetadata:
		n += len(c.AppMetaData)
	}
	return n
}

// emit reports if section sec is written by MarshalJSON.
func (c *Contract) emit(sec string) bool {
	return c.present == nil || c.present[sec] || c.len(sec) > 0
}

// MarshalJSON implements json.Marshaler.
func (c *Contract) MarshalJSON() ([]byte, error) {
	out := map[string]stdJSON.RawMessage{}

	for _, sec := range Sections {
		if !c.emit(sec) {
			continue
		}
		entries := map[string]stdJSON.RawMessage{}
		for k, v := range c.Passthrough[sec] {
			entries[k] = v
		}
		var err error
		switch sec {
		case SectionAccount:
			err = marshalEntries(entries, c.Accounts)
		case SectionIDToken:
			err = marshalEntries(entries, c.IDTokens)
		case SectionAccessToken:
			err = marshalEntries(entries, c.AccessTokens)
		case SectionRefreshToken:
			err = marshalEntries(entries, c.RefreshTokens)
		case SectionAppMetadata:
			err = marshalEntries(entries, c.AppMetaData)
		}
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", sec, err)
		}
		b, err := stdJSON.Marshal(entries)
		if err != nil {
			return nil, err
		}
		out[sec] = b
	}

	for k, v := range c.AdditionalFields {
		if _, ok := out[k]; ok {
			continue
		}
		b, err := stdJSON.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", k, err)
		}
		out[k] = b
	}
	return stdJSON.Marshal(out)
}

func marshalEntries[T any](dst map[string]stdJSON.RawMessage, src map[string]T) error {
	for k, v := range src {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("entry %s: %w", k, err)
		}
		dst[k] = b
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. It only fails if b is not a JSON object.
// Entries that do not decode as their section's kind are kept as passthrough.
func (c *Contract) UnmarshalJSON(b []byte) error {
	doc, err := json.Object(b)
	if err != nil {
		return err
	}

	n := NewContract()
	n.present = map[string]bool{}
	for k, v := range doc {
		if _, ok := requiredFields[k]; !ok {
			n.AdditionalFields[k] = v
			continue
		}
		entries, err := json.Object(v)
		if err != nil {
			// A recognized name holding something other than an object can't be decoded,
			// so the whole value is kept as it was.
			n.AdditionalFields[k] = v
			continue
		}
		n.present[k] = true
		for key, raw := range entries {
			if !n.decodeEntry(k, key, raw) {
				if n.Passthrough[k] == nil {
					n.Passthrough[k] = map[string]stdJSON.RawMessage{}
				}
				n.Passthrough[k][key] = raw
			}
		}
	}
	*c = *n
	return nil
}

// decodeEntry decodes raw into the typed map of section sec. It reports false if raw is not
// a valid entry of that kind, or would not be written back as the same JSON value.
func (c *Contract) decodeEntry(sec, key string, raw stdJSON.RawMessage) bool {
	if !Valid(sec, raw) {
		return false
	}
	switch sec {
	case SectionAccount:
		return decodeInto(c.Accounts, key, raw)
	case SectionIDToken:
		return decodeInto(c.IDTokens, key, raw)
	case SectionAccessToken:
		return decodeInto(c.AccessTokens, key, raw)
	case SectionRefreshToken:
		return decodeInto(c.RefreshTokens, key, raw)
	case SectionAppMetadata:
		return decodeInto(c.AppMetaData, key, raw)
	}
	return false
}

func decodeInto[T any](dst map[string]T, key string, raw stdJSON.RawMessage) bool {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil || !json.Equal(b, raw) {
		return false
	}
	dst[key] = v
	return true
}

// Valid reports if raw carries every field required for an entry of section sec, each as a
// JSON string, and a credential_type that belongs in sec.
func Valid(sec string, raw stdJSON.RawMessage) bool {
	req, ok := requiredFields[sec]
	if !ok {
		return false
	}
	fields, err := json.Object(raw)
	if err != nil {
		return false
	}
	for _, name := range req {
		if !json.IsString(fields[name]) {
			return false
		}
	}
	allowed, ok := credentialTypesBySection[sec]
	if !ok {
		return true
	}
	var ct string
	if err := stdJSON.Unmarshal(fields["credential_type"], &ct); err != nil {
		return false
	}
	for _, a := range allowed {
		if ct == a {
			return true
		}
	}
	return false
}
