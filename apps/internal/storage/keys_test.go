// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

const (
	guidHID    = "9f4880d8-80ba-4c40-97bc-f7a23c703084.f645ad92-e38d-4d1a-b510-d1b09a74a8ca"
	guidRealm  = "f645ad92-e38d-4d1a-b510-d1b09a74a8ca"
	guidClient = "0a0ac21e-5c2d-4e6a-a4f9-7e4c2d9c3a9b"
	msEnv      = "login.microsoftonline.com"
)

func TestKeyForAccessToken(t *testing.T) {
	const want = "testhid-env-accesstoken-clientid-realm-user.read"
	got := atCacheEntity.Key()
	if got != want {
		t.Errorf("TestKeyForAccessToken: got %s, want %s", got, want)
	}
}

func TestKeyForAppMetaData(t *testing.T) {
	want := "appmetadata-env-cid"
	got := appMeta.Key()
	if want != got {
		t.Errorf("actual key %v differs from expected key %v", want, got)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		desc string
		key  interface{ Key() string }
		want string
	}{
		{
			desc: "account",
			key:  Account{HomeAccountID: "uid.utid", Environment: "login.windows.net", Realm: "Contoso"},
			want: "uid.utid-login.windows.net-contoso",
		},
		{
			desc: "id token",
			key:  IDToken{HomeAccountID: "uid.utid", Environment: "login.windows.net", ClientID: "my_client_id", Realm: "contoso"},
			want: "uid.utid-login.windows.net-idtoken-my_client_id-contoso-",
		},
		{
			desc: "bearer access token",
			key: AccessToken{
				HomeAccountID: "uid.utid", Environment: "login.windows.net", CredentialType: CredentialTypeAccessToken,
				ClientID: "my_client_id", Realm: "contoso", Scopes: "s2 s1 s3", TokenType: "Bearer",
			},
			want: "uid.utid-login.windows.net-accesstoken-my_client_id-contoso-s2 s1 s3",
		},
		{
			desc: "access token with claims",
			key: AccessToken{
				HomeAccountID: "uid.utid", Environment: "login.windows.net", CredentialType: CredentialTypeAccessToken,
				ClientID: "my_client_id", Realm: "contoso", Scopes: "s1", RequestedClaimsHash: "ABC",
			},
			want: "uid.utid-login.windows.net-accesstoken-my_client_id-contoso-s1-abc-",
		},
		{
			desc: "pop access token",
			key: AccessToken{
				HomeAccountID: "uid.utid", Environment: "login.windows.net", CredentialType: CredentialTypeAccessTokenWithAuthScheme,
				ClientID: "my_client_id", Realm: "contoso", Scopes: "s1", TokenType: "pop",
			},
			want: "uid.utid-login.windows.net-accesstoken_with_authscheme-my_client_id-contoso-s1--pop",
		},
		{
			desc: "refresh token",
			key:  RefreshToken{HomeAccountID: "uid.utid", Environment: "login.windows.net", ClientID: "my_client_id"},
			want: "uid.utid-login.windows.net-refreshtoken-my_client_id--",
		},
		{
			desc: "family refresh token",
			key:  RefreshToken{HomeAccountID: "uid.utid", Environment: "login.windows.net", ClientID: "my_client_id", FamilyID: "1"},
			want: "uid.utid-login.windows.net-refreshtoken-1--",
		},
		{
			desc: "app metadata",
			key:  AppMetaData{Environment: "login.windows.net", ClientID: "My_Client_ID"},
			want: "appmetadata-login.windows.net-my_client_id",
		},
	}

	for _, test := range tests {
		got := test.key.Key()
		if got != test.want {
			t.Errorf("TestKeys(%s): got %q, want %q", test.desc, got, test.want)
		}
		if again := test.key.Key(); again != got {
			t.Errorf("TestKeys(%s): Key() is not deterministic: %q then %q", test.desc, got, again)
		}
	}
}

func TestParseAccountKey(t *testing.T) {
	tests := []struct {
		desc    string
		account Account
		err     bool
	}{
		{desc: "plain", account: Account{HomeAccountID: "uid.utid", Environment: "login.windows.net", Realm: "contoso"}},
		{desc: "guids", account: Account{HomeAccountID: guidHID, Environment: msEnv, Realm: guidRealm}},
		{
			desc:    "b2c policy in home account id",
			account: Account{HomeAccountID: guidClient + "-b2c_1_signin." + guidRealm, Environment: "contoso.b2clogin.com", Realm: guidRealm},
		},
		{desc: "separator in environment", account: Account{HomeAccountID: "uid.utid", Environment: "login-us.microsoftonline.com", Realm: "contoso"}},
		{desc: "home account id without a dot", account: Account{HomeAccountID: "sub", Environment: msEnv, Realm: "contoso"}},
		{desc: "separator in home account id without a dot", account: Account{HomeAccountID: "adfs-sub", Environment: "adfs.contoso.com", Realm: "adfs"}},
	}

	for _, test := range tests {
		got, err := ParseAccountKey(test.account.Key())
		if err != nil {
			t.Errorf("TestParseAccountKey(%s): got err == %s, want err == nil", test.desc, err)
			continue
		}
		want := KeyParts{
			HomeAccountID: strings.ToLower(test.account.HomeAccountID),
			Environment:   strings.ToLower(test.account.Environment),
			Realm:         strings.ToLower(test.account.Realm),
		}
		if diff := pretty.Compare(want, got); diff != "" {
			t.Errorf("TestParseAccountKey(%s): -want/+got:\n%s", test.desc, diff)
		}
	}

	if _, err := ParseAccountKey("nodashes"); err == nil {
		t.Errorf("TestParseAccountKey(malformed): got err == nil, want err != nil")
	}
}

func TestParseCredentialKey(t *testing.T) {
	tests := []struct {
		desc string
		key  string
		want KeyParts
		err  bool
	}{
		{
			desc: "id token",
			key:  IDToken{HomeAccountID: guidHID, Environment: msEnv, ClientID: guidClient, Realm: guidRealm}.Key(),
			want: KeyParts{HomeAccountID: guidHID, Environment: msEnv, CredentialType: CredentialTypeIDToken, ClientID: guidClient, Realm: guidRealm},
		},
		{
			desc: "access token with guids",
			key: AccessToken{
				HomeAccountID: guidHID, Environment: msEnv, CredentialType: CredentialTypeAccessToken,
				ClientID: guidClient, Realm: guidRealm, Scopes: "user.read openid",
			}.Key(),
			want: KeyParts{
				HomeAccountID: guidHID, Environment: msEnv, CredentialType: CredentialTypeAccessToken,
				ClientID: guidClient, Realm: guidRealm, Target: "user.read openid",
			},
		},
		{
			desc: "access token with claims and scheme",
			key: AccessToken{
				HomeAccountID: guidHID, Environment: msEnv, CredentialType: CredentialTypeAccessTokenWithAuthScheme,
				ClientID: guidClient, Realm: guidRealm, Scopes: "s1", RequestedClaimsHash: "abc", TokenType: "pop",
			}.Key(),
			want: KeyParts{
				HomeAccountID: guidHID, Environment: msEnv, CredentialType: CredentialTypeAccessTokenWithAuthScheme,
				ClientID: guidClient, Realm: guidRealm, Target: "s1", RequestedClaimsHash: "abc", Scheme: "pop",
			},
		},
		{
			desc: "ssh-cert access token",
			key: AccessToken{
				HomeAccountID: "uid.utid", Environment: msEnv, CredentialType: CredentialTypeAccessTokenWithAuthScheme,
				ClientID: "cid", Realm: "contoso", Scopes: "https://pas.windows.net/CheckMyAccess/Linux/.default", TokenType: "ssh-cert",
			}.Key(),
			want: KeyParts{
				HomeAccountID: "uid.utid", Environment: msEnv, CredentialType: CredentialTypeAccessTokenWithAuthScheme,
				ClientID: "cid", Realm: "contoso", Target: "https://pas.windows.net/checkmyaccess/linux/.default", Scheme: "ssh-cert",
			},
		},
		{
			desc: "target containing a separator",
			key:  "uid.utid-login.windows.net-accesstoken-my_client_id-contoso-api://my-api/.default",
			want: KeyParts{
				HomeAccountID: "uid.utid", Environment: "login.windows.net", CredentialType: CredentialTypeAccessToken,
				ClientID: "my_client_id", Realm: "contoso", Target: "api://my-api/.default",
			},
		},
		{
			desc: "refresh token",
			key:  RefreshToken{HomeAccountID: guidHID, Environment: msEnv, ClientID: guidClient}.Key(),
			want: KeyParts{HomeAccountID: guidHID, Environment: msEnv, CredentialType: CredentialTypeRefreshToken, ClientID: guidClient},
		},
		{
			desc: "legacy key without trailing segments",
			key:  "uid.utid-login.windows.net-refreshtoken-my_client_id",
			want: KeyParts{HomeAccountID: "uid.utid", Environment: "login.windows.net", CredentialType: CredentialTypeRefreshToken, ClientID: "my_client_id"},
		},
		{
			desc: "refresh token with separator in client id and environment",
			key:  RefreshToken{HomeAccountID: "uid.utid", Environment: "login-us.microsoftonline.com", ClientID: "my-app"}.Key(),
			want: KeyParts{HomeAccountID: "uid.utid", Environment: "login-us.microsoftonline.com", CredentialType: CredentialTypeRefreshToken, ClientID: "my-app"},
		},
		{
			desc: "family refresh token",
			key:  RefreshToken{HomeAccountID: "uid.utid", Environment: msEnv, ClientID: "my-app", FamilyID: "1"}.Key(),
			want: KeyParts{HomeAccountID: "uid.utid", Environment: msEnv, CredentialType: CredentialTypeRefreshToken, ClientID: "1"},
		},
		{
			desc: "id token with separator in client id",
			key:  IDToken{HomeAccountID: "uid.utid", Environment: msEnv, ClientID: "my-app", Realm: "contoso"}.Key(),
			want: KeyParts{HomeAccountID: "uid.utid", Environment: msEnv, CredentialType: CredentialTypeIDToken, ClientID: "my-app", Realm: "contoso"},
		},
		{
			desc: "id token without realm",
			key:  IDToken{HomeAccountID: "uid.utid", Environment: msEnv, ClientID: "my-app"}.Key(),
			want: KeyParts{HomeAccountID: "uid.utid", Environment: msEnv, CredentialType: CredentialTypeIDToken, ClientID: "my-app"},
		},
		{
			desc: "legacy id token key without target",
			key:  "uid.utid-login.windows.net-idtoken-my_client_id-contoso",
			want: KeyParts{HomeAccountID: "uid.utid", Environment: "login.windows.net", CredentialType: CredentialTypeIDToken, ClientID: "my_client_id", Realm: "contoso"},
		},
		{
			desc: "access token with separator in environment",
			key: AccessToken{
				HomeAccountID: guidHID, Environment: "login-us.microsoftonline.com", CredentialType: CredentialTypeAccessToken,
				ClientID: guidClient, Realm: guidRealm, Scopes: "user.read",
			}.Key(),
			want: KeyParts{
				HomeAccountID: guidHID, Environment: "login-us.microsoftonline.com", CredentialType: CredentialTypeAccessToken,
				ClientID: guidClient, Realm: guidRealm, Target: "user.read",
			},
		},
		{
			desc: "no credential type",
			key:  "uid.utid-login.windows.net-contoso",
			err:  true,
		},
		{
			desc: "empty client",
			key:  "uid.utid-login.windows.net-idtoken-",
			err:  true,
		},
		{
			desc: "credential type without client",
			key:  "uid.utid-login.windows.net-idtoken",
			err:  true,
		},
	}

	for _, test := range tests {
		got, err := ParseCredentialKey(test.key)
		switch {
		case err == nil && test.err:
			t.Errorf("TestParseCredentialKey(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestParseCredentialKey(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestParseCredentialKey(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestParseAppMetadataKey(t *testing.T) {
	got, err := ParseAppMetadataKey(AppMetaData{Environment: msEnv, ClientID: guidClient}.Key())
	if err != nil {
		t.Fatalf("TestParseAppMetadataKey: got err == %s, want err == nil", err)
	}
	want := KeyParts{Environment: msEnv, ClientID: guidClient}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestParseAppMetadataKey: -want/+got:\n%s", diff)
	}

	got, err = ParseAppMetadataKey(AppMetaData{Environment: "login-us.microsoftonline.com", ClientID: "my-app"}.Key())
	if err != nil {
		t.Fatalf("TestParseAppMetadataKey(separators): got err == %s, want err == nil", err)
	}
	want = KeyParts{Environment: "login-us.microsoftonline.com", ClientID: "my-app"}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestParseAppMetadataKey(separators): -want/+got:\n%s", diff)
	}

	// Earlier Go releases wrote the prefix as "AppMetaData".
	if _, err := ParseAppMetadataKey("AppMetaData-env-cid"); err != nil {
		t.Errorf("TestParseAppMetadataKey(mixed case prefix): got err == %s, want err == nil", err)
	}
	if _, err := ParseAppMetadataKey("account-env-cid"); err == nil {
		t.Errorf("TestParseAppMetadataKey(wrong prefix): got err == nil, want err != nil")
	}
}

// TestKeyRoundTrip decodes the key of each entity and compares it with the entity's own fields.
func TestKeyRoundTrip(t *testing.T) {
	const dashedEnv = "login-us.microsoftonline.com"

	tests := []struct {
		desc   string
		entity interface {
			Key() string
			keyParts() KeyParts
		}
		parse func(string) (KeyParts, error)
	}{
		{desc: "account", entity: NewAccount("uid.utid", dashedEnv, "contoso", accLID, accAuth, accUser), parse: ParseAccountKey},
		{desc: "b2c account", entity: NewAccount(guidClient+"-b2c_1_signin."+guidRealm, "contoso.b2clogin.com", guidRealm, accLID, accAuth, accUser), parse: ParseAccountKey},
		{desc: "id token", entity: NewIDToken("uid.utid", dashedEnv, "contoso", "my-app", idSecret), parse: ParseCredentialKey},
		{desc: "id token with guids", entity: NewIDToken(guidHID, msEnv, guidRealm, guidClient, idSecret), parse: ParseCredentialKey},
		{desc: "refresh token", entity: NewRefreshToken("uid.utid", dashedEnv, "my-app", "rt", ""), parse: ParseCredentialKey},
		{desc: "family refresh token", entity: NewRefreshToken("uid.utid", msEnv, "my-app", "rt", "1"), parse: ParseCredentialKey},
		{
			desc:   "access token",
			entity: NewAccessToken("uid.utid", dashedEnv, "contoso", guidClient, time.Unix(1000, 0), time.Unix(4600, 0), time.Unix(4600, 0), "User.Read openid", "at"),
			parse:  ParseCredentialKey,
		},
		{
			desc: "pop access token",
			entity: AccessToken{
				HomeAccountID: "uid.utid", Environment: msEnv, CredentialType: CredentialTypeAccessTokenWithAuthScheme,
				ClientID: guidClient, Realm: "contoso", Scopes: "api://my-api/.default", TokenType: "pop", RequestedClaimsHash: "abc",
			},
			parse: ParseCredentialKey,
		},
		{desc: "app metadata", entity: NewAppMetaData("1", "my-app", dashedEnv), parse: ParseAppMetadataKey},
	}

	for _, test := range tests {
		got, err := test.parse(test.entity.Key())
		if err != nil {
			t.Errorf("TestKeyRoundTrip(%s): got err == %s, want err == nil", test.desc, err)
			continue
		}
		if diff := pretty.Compare(test.entity.keyParts(), got); diff != "" {
			t.Errorf("TestKeyRoundTrip(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestForeignKeys(t *testing.T) {
	m := New(nil)
	acc := NewAccount("uid.utid", "login-us.microsoftonline.com", "contoso", accLID, accAuth, accUser)
	m.SetAccount(acc)
	m.SetRefreshToken(NewRefreshToken("uid.utid", msEnv, "my-app", "rt", ""))

	doc := []byte(`{"Account": {"login.windows.net-uid.utid-contoso": {
		"home_account_id": "uid.utid", "environment": "login.windows.net", "realm": "contoso",
		"local_account_id": "lid", "username": "user", "authority_type": "MSSTS"}}}`)
	other := New(nil)
	if err := other.Unmarshal(doc); err != nil {
		t.Fatal(err)
	}

	if keys := m.ForeignKeys(SectionAccount); len(keys) != 0 {
		t.Errorf("TestForeignKeys(accounts): got %v, want none", keys)
	}
	if keys := m.ForeignKeys(SectionRefreshToken); len(keys) != 0 {
		t.Errorf("TestForeignKeys(refresh tokens): got %v, want none", keys)
	}
	if diff := pretty.Compare([]string{"login.windows.net-uid.utid-contoso"}, other.ForeignKeys(SectionAccount)); diff != "" {
		t.Errorf("TestForeignKeys(swapped key): -want/+got:\n%s", diff)
	}
	if keys := m.ForeignKeys("Unknown"); len(keys) != 0 {
		t.Errorf("TestForeignKeys(unknown section): got %v, want none", keys)
	}
}
