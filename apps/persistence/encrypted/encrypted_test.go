// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package encrypted

import (
	"bytes"
	"context"
	"testing"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

const plaintext = `{"Account":{},"Unrecognized_Entity":{"foo":{"bar":"baz"}}}`

func testAEAD(t *testing.T) tink.AEAD {
	t.Helper()
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		t.Fatalf("creating keyset handle: %s", err)
	}
	a, err := aead.New(handle)
	if err != nil {
		t.Fatalf("creating AEAD: %s", err)
	}
	return a
}

func passphrase(s string) PassphraseFunc {
	return func() (string, error) { return s, nil }
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		desc string
		aead tink.AEAD
	}{
		{desc: "tink", aead: testAEAD(t)},
		{desc: "passphrase", aead: NewPassphraseAEAD(passphrase("correct horse"))},
	}

	for _, test := range tests {
		ctx := context.Background()
		inner := &persistence.Memory{}
		s, err := New(inner, test.aead, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, []byte(plaintext)); err != nil {
			t.Fatalf("TestRoundTrip(%s): Save: %s", test.desc, err)
		}
		stored, _ := inner.Load(ctx)
		if bytes.Contains(stored, []byte("Unrecognized_Entity")) {
			t.Errorf("TestRoundTrip(%s): the stored cache is plaintext", test.desc)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("TestRoundTrip(%s): Load: %s", test.desc, err)
		}
		if string(got) != plaintext {
			t.Errorf("TestRoundTrip(%s): got %q, want %q", test.desc, got, plaintext)
		}
	}
}

func TestLoadEmpty(t *testing.T) {
	s, err := New(&persistence.Memory{}, testAEAD(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Load(context.Background())
	if b != nil || err != nil {
		t.Errorf("TestLoadEmpty: got %q, %v, want nil, nil", b, err)
	}
}

func TestDecryptFailures(t *testing.T) {
	ctx := context.Background()
	inner := &persistence.Memory{}
	s, err := New(inner, NewPassphraseAEAD(passphrase("right")), []byte("app one"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, []byte(plaintext)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		desc string
		aead tink.AEAD
		ad   []byte
	}{
		{desc: "wrong passphrase", aead: NewPassphraseAEAD(passphrase("wrong")), ad: []byte("app one")},
		{desc: "wrong associated data", aead: NewPassphraseAEAD(passphrase("right")), ad: []byte("app two")},
	}
	for _, test := range tests {
		other, err := New(inner, test.aead, test.ad)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := other.Load(ctx); err == nil {
			t.Errorf("TestDecryptFailures(%s): got err == nil, want err != nil", test.desc)
		}
	}

	if _, err := NewPassphraseAEAD(passphrase("right")).Decrypt([]byte("short"), nil); err == nil {
		t.Errorf("TestDecryptFailures(short): got err == nil, want err != nil")
	}
}

func TestNewRequiresArguments(t *testing.T) {
	if _, err := New(nil, testAEAD(t), nil); err == nil {
		t.Errorf("TestNewRequiresArguments: got err == nil without a backend")
	}
	if _, err := New(&persistence.Memory{}, nil, nil); err == nil {
		t.Errorf("TestNewRequiresArguments: got err == nil without an AEAD")
	}
}
