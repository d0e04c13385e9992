// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package encrypted wraps a persistence backend so the cache is encrypted before it is
// stored. Any tink.AEAD can be used. NewPassphraseAEAD derives one from a passphrase for
// hosts without a key management service.
package encrypted

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/tink-crypto/tink-go/v2/tink"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// defaultAssociatedData binds ciphertexts to their use as a token cache.
var defaultAssociatedData = []byte("msal token cache")

// Storage encrypts the cache with an AEAD and stores the ciphertext in another backend.
type Storage struct {
	inner persistence.Persistence
	aead  tink.AEAD
	ad    []byte
}

var _ persistence.Persistence = (*Storage)(nil)

// New wraps inner. associatedData is authenticated with every ciphertext; a cache saved with
// one value can only be loaded with the same value. If associatedData is nil a default is used.
func New(inner persistence.Persistence, aead tink.AEAD, associatedData []byte) (*Storage, error) {
	if inner == nil || aead == nil {
		return nil, errors.New("encrypted storage requires a backend and an AEAD")
	}
	if associatedData == nil {
		associatedData = defaultAssociatedData
	}
	return &Storage{inner: inner, aead: aead, ad: associatedData}, nil
}

// Load implements persistence.Persistence.
func (s *Storage) Load(ctx context.Context) ([]byte, error) {
	ct, err := s.inner.Load(ctx)
	if err != nil || len(ct) == 0 {
		return nil, err
	}
	pt, err := s.aead.Decrypt(ct, s.ad)
	if err != nil {
		return nil, fmt.Errorf("couldn't decrypt the token cache: %w", err)
	}
	return pt, nil
}

// Save implements persistence.Persistence.
func (s *Storage) Save(ctx context.Context, b []byte) error {
	ct, err := s.aead.Encrypt(b, s.ad)
	if err != nil {
		return fmt.Errorf("couldn't encrypt the token cache: %w", err)
	}
	return s.inner.Save(ctx, ct)
}

const (
	keySize   = 32
	nonceSize = 24
	saltSize  = 8
)

// PassphraseFunc returns the passphrase. It is called for every encryption and decryption,
// so it may prompt the user or read a secret store.
type PassphraseFunc func() (string, error)

type passphraseAEAD struct {
	passphrase PassphraseFunc
}

// NewPassphraseAEAD returns a tink.AEAD using NaCl secretbox with a key derived from a
// passphrase by scrypt. Ciphertexts are laid out as:
//
//	24 bytes: nonce
//	8 bytes:  salt
//	N bytes:  secretbox(sha256(associatedData) || plaintext)
func NewPassphraseAEAD(passphrase PassphraseFunc) tink.AEAD {
	return passphraseAEAD{passphrase: passphrase}
}

func (p passphraseAEAD) key(salt []byte) (*[keySize]byte, error) {
	pass, err := p.passphrase()
	if err != nil {
		return nil, err
	}
	k, err := scrypt.Key([]byte(pass), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, err
	}
	var key [keySize]byte
	copy(key[:], k)
	return &key, nil
}

// Encrypt implements tink.AEAD.
func (p passphraseAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := p.key(salt)
	if err != nil {
		return nil, err
	}

	adHash := sha256.Sum256(associatedData)
	msg := append(adHash[:], plaintext...)

	out := make([]byte, 0, nonceSize+saltSize+len(msg)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = append(out, salt...)
	return secretbox.Seal(out, msg, &nonce, key), nil
}

// Decrypt implements tink.AEAD.
func (p passphraseAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+saltSize+secretbox.Overhead+sha256.Size {
		return nil, errors.New("ciphertext is too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext)
	salt := ciphertext[nonceSize : nonceSize+saltSize]
	key, err := p.key(salt)
	if err != nil {
		return nil, err
	}

	msg, ok := secretbox.Open(nil, ciphertext[nonceSize+saltSize:], &nonce, key)
	if !ok {
		return nil, errors.New("decryption failed, the passphrase may be wrong")
	}
	adHash := sha256.Sum256(associatedData)
	if !bytes.Equal(msg[:sha256.Size], adHash[:]) {
		return nil, errors.New("associated data doesn't match")
	}
	return msg[sha256.Size:], nil
}
