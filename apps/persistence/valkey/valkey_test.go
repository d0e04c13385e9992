// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package valkey

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/valkey-io/valkey-go"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, "cache"); err == nil {
		t.Errorf("TestNewValidation: got err == nil for a nil client")
	}
}

// TestSaveLoad runs against the server in VALKEY_ADDR, for example "localhost:6379".
func TestSaveLoad(t *testing.T) {
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		t.Skip("VALKEY_ADDR is not set")
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)

	ctx := context.Background()
	key := "msal-test-" + t.Name()
	t.Cleanup(func() {
		client.Do(context.Background(), client.B().Del().Key(key).Build())
	})

	for _, options := range [][]Option{nil, {WithTTL(time.Minute)}} {
		s, err := New(client, key, options...)
		if err != nil {
			t.Fatal(err)
		}
		client.Do(ctx, client.B().Del().Key(key).Build())

		b, err := s.Load(ctx)
		if b != nil || err != nil {
			t.Errorf("TestSaveLoad(missing): got %q, %v, want nil, nil", b, err)
		}
		if err := s.Save(ctx, []byte(`{"Account":{}}`)); err != nil {
			t.Fatalf("TestSaveLoad: Save: %s", err)
		}
		b, err = s.Load(ctx)
		if err != nil {
			t.Fatalf("TestSaveLoad: Load: %s", err)
		}
		if string(b) != `{"Account":{}}` {
			t.Errorf("TestSaveLoad: got %q, want %q", b, `{"Account":{}}`)
		}
	}

	cached, err := New(client, key, WithClientSideCache(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	b, err := cached.Load(ctx)
	if err != nil {
		t.Fatalf("TestSaveLoad(client side cache): Load: %s", err)
	}
	if string(b) != `{"Account":{}}` {
		t.Errorf("TestSaveLoad(client side cache): got %q, want %q", b, `{"Account":{}}`)
	}
}
