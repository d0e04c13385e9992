// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package idtoken reads the claims of ID tokens stored in the cache. Signatures are not
// verified, the token was validated when it was acquired.
package idtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Decoder decodes the base64 segments of a token. Hosts with their own crypto
// capability can supply one.
type Decoder interface {
	Base64Decode(s string) ([]byte, error)
}

// DecoderFunc adapts a func to a Decoder.
type DecoderFunc func(s string) ([]byte, error)

// Base64Decode implements Decoder.
func (f DecoderFunc) Base64Decode(s string) ([]byte, error) {
	return f(s)
}

// NewDecoder returns the default Decoder. It accepts base64url, which is what JWTs use, with
// or without padding. Input that is only valid as standard base64 is accepted too, since some
// MSAL versions wrote tokens that way.
func NewDecoder() Decoder {
	p := jwt.NewParser(jwt.WithPaddingAllowed())
	return DecoderFunc(func(s string) ([]byte, error) {
		b, err := p.DecodeSegment(s)
		if err == nil {
			return b, nil
		}
		if i := len(s) % 4; i != 0 {
			s += strings.Repeat("=", 4-i)
		}
		if b, stdErr := base64.StdEncoding.DecodeString(s); stdErr == nil {
			return b, nil
		}
		return nil, err
	})
}

// Claims are the claims of an ID token.
type Claims struct {
	jwt.MapClaims
}

// Parse returns the claims of raw, a JWT. d decodes the payload. If d is nil, NewDecoder() is used.
func Parse(raw string, d Decoder) (Claims, error) {
	if d == nil {
		d = NewDecoder()
	}
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return Claims{}, errors.New("id token is not a JWT")
	}
	b, err := d.Base64Decode(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("id token payload could not be decoded: %w", err)
	}
	m := jwt.MapClaims{}
	if err := json.Unmarshal(b, &m); err != nil {
		return Claims{}, fmt.Errorf("id token payload is not a JSON object: %w", err)
	}
	return Claims{MapClaims: m}, nil
}

func (c Claims) str(name string) string {
	s, _ := c.MapClaims[name].(string)
	return s
}

// LocalAccountID is the oid claim, or the sub claim if there is no oid.
func (c Claims) LocalAccountID() string {
	if oid := c.str("oid"); oid != "" {
		return oid
	}
	sub, _ := c.GetSubject()
	return sub
}

// PreferredUsername is the preferred_username claim, or the upn or email claim if it is missing.
func (c Claims) PreferredUsername() string {
	for _, name := range []string{"preferred_username", "upn", "email"} {
		if v := c.str(name); v != "" {
			return v
		}
	}
	return ""
}

// Name is the name claim.
func (c Claims) Name() string {
	return c.str("name")
}

// TenantID is the tid claim.
func (c Claims) TenantID() string {
	return c.str("tid")
}
