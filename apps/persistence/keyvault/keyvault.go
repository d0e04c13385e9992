// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package keyvault stores the token cache as an Azure Key Vault secret. Secret values are
// strings, so the cache is stored base64 encoded.
package keyvault

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/maypok86/otter/v2"
)

// contentType marks secrets written by this package.
const contentType = "application/vnd.msal.tokencache+base64"

// secretsClient is the part of *azsecrets.Client used by Storage. It is defined to allow
// faking Key Vault in tests.
type secretsClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// Storage is a persistence.Persistence backed by a Key Vault secret.
type Storage struct {
	client secretsClient
	name   string
	// reads caches the last value read or written when WithReadCache is set.
	reads *otter.Cache[string, []byte]
}

var _ persistence.Persistence = (*Storage)(nil)

// Option is an optional argument to New.
type Option func(s *Storage)

// WithReadCache serves Load from memory for up to ttl after the secret was last read or
// written by this Storage. Key Vault throttles frequent reads, and a cache is loaded before
// every access. Writes by other processes are not seen until the entry expires.
func WithReadCache(ttl time.Duration) Option {
	return func(s *Storage) {
		if ttl <= 0 {
			return
		}
		s.reads = otter.Must(&otter.Options[string, []byte]{
			MaximumSize:      1,
			ExpiryCalculator: otter.ExpiryCreating[string, []byte](ttl),
		})
	}
}

// New returns a Storage for the secret secretName in the vault at vaultURL, for example
// "https://myvault.vault.azure.net".
func New(vaultURL, secretName string, cred azcore.TokenCredential, options ...Option) (*Storage, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't create a Key Vault client: %w", err)
	}
	return newStorage(client, secretName, options...)
}

func newStorage(client secretsClient, secretName string, options ...Option) (*Storage, error) {
	if secretName == "" {
		return nil, errors.New("secret name can't be empty")
	}
	s := &Storage{client: client, name: secretName}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Load implements persistence.Persistence. A missing secret is an empty cache.
func (s *Storage) Load(ctx context.Context) ([]byte, error) {
	if s.reads != nil {
		if e, ok := s.reads.GetEntry(s.name); ok {
			return bytes.Clone(e.Value), nil
		}
	}

	resp, err := s.client.GetSecret(ctx, s.name, "", nil)
	if err != nil {
		var re *azcore.ResponseError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("couldn't get secret %s: %w", s.name, err)
	}
	if resp.Value == nil || *resp.Value == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return nil, fmt.Errorf("secret %s doesn't hold a token cache: %w", s.name, err)
	}
	if s.reads != nil {
		s.reads.Set(s.name, bytes.Clone(b))
	}
	return b, nil
}

// Save implements persistence.Persistence. Each Save creates a new version of the secret.
func (s *Storage) Save(ctx context.Context, b []byte) error {
	value := base64.StdEncoding.EncodeToString(b)
	ct := contentType
	_, err := s.client.SetSecret(ctx, s.name, azsecrets.SetSecretParameters{Value: &value, ContentType: &ct}, nil)
	if err != nil {
		if s.reads != nil {
			s.reads.Invalidate(s.name)
		}
		return fmt.Errorf("couldn't set secret %s: %w", s.name, err)
	}
	if s.reads != nil {
		s.reads.Set(s.name, bytes.Clone(b))
	}
	return nil
}
