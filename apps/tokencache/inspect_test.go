// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package tokencache

import (
	"testing"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/json"
	"github.com/kylelemons/godebug/pretty"
)

func TestSections(t *testing.T) {
	tc := New()
	if err := tc.Unmarshal(readFile(t, "../internal/storage/testdata/test_serialized_cache.json")); err != nil {
		t.Fatal(err)
	}
	counts, unknown := tc.Sections()

	want := []SectionCount{
		{Name: "Account", Entries: 1},
		{Name: "IdToken", Entries: 2, Unrecognized: 1},
		{Name: "AccessToken", Entries: 2, Unrecognized: 1},
		{Name: "RefreshToken", Entries: 1},
		{Name: "AppMetadata", Entries: 1},
	}
	if diff := pretty.Compare(want, counts); diff != "" {
		t.Errorf("TestSections: -want/+got:\n%s", diff)
	}
	if diff := pretty.Compare([]string{"unknownEntity"}, unknown); diff != "" {
		t.Errorf("TestSections(unknown): -want/+got:\n%s", diff)
	}
}

func TestSectionsForeignKeys(t *testing.T) {
	const doc = `{
		"Account": {
			"login.windows.net-uid.utid-contoso": {
				"home_account_id": "uid.utid",
				"environment": "login.windows.net",
				"realm": "contoso",
				"local_account_id": "object1234",
				"username": "John Doe",
				"authority_type": "MSSTS"
			},
			"uid.utid-login-us.microsoftonline.com-contoso": {
				"home_account_id": "uid.utid",
				"environment": "login-us.microsoftonline.com",
				"realm": "contoso",
				"local_account_id": "object1234",
				"username": "John Doe",
				"authority_type": "MSSTS"
			}
		},
		"RefreshToken": {
			"uid.utid-login.windows.net-refreshtoken-my-app--": {
				"home_account_id": "uid.utid",
				"environment": "login.windows.net",
				"credential_type": "RefreshToken",
				"client_id": "my-app",
				"secret": "a refresh token"
			}
		}
	}`
	tc := New()
	if err := tc.Deserialize(doc); err != nil {
		t.Fatal(err)
	}
	counts, _ := tc.Sections()

	want := []SectionCount{
		{Name: "Account", Entries: 2, ForeignKeys: 1},
		{Name: "IdToken"},
		{Name: "AccessToken"},
		{Name: "RefreshToken", Entries: 1},
		{Name: "AppMetadata"},
	}
	if diff := pretty.Compare(want, counts); diff != "" {
		t.Errorf("TestSectionsForeignKeys: -want/+got:\n%s", diff)
	}
}

func TestMarshalEntry(t *testing.T) {
	tc := New()
	if err := tc.Unmarshal(readFile(t, "../internal/storage/testdata/test_serialized_cache.json")); err != nil {
		t.Fatal(err)
	}
	doc, err := json.Object(readFile(t, "../internal/storage/testdata/test_serialized_cache.json"))
	if err != nil {
		t.Fatal(err)
	}
	original := map[string][]byte{}
	for _, sec := range []string{"Account", "IdToken", "AccessToken", "RefreshToken", "AppMetadata"} {
		entries, err := json.Object(doc[sec])
		if err != nil {
			t.Fatal(err)
		}
		for k, v := range entries {
			original[k] = v
		}
	}

	for k, v := range tc.KVStore() {
		got, err := MarshalEntry(v)
		if err != nil {
			t.Errorf("TestMarshalEntry(%s): %s", k, err)
			continue
		}
		if !json.Equal(got, original[k]) {
			t.Errorf("TestMarshalEntry(%s): got %s, want %s", k, got, original[k])
		}
	}
}
