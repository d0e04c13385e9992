// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Command msalcache inspects and edits an MSAL token cache kept in a file, the system keyring,
a Valkey server or an Azure Key Vault secret.

	msalcache accounts
	msalcache remove HOME_ACCOUNT_ID [--realm REALM]
	msalcache kv
	msalcache sections

Settings are read from MSALCACHE_* environment variables. Run "msalcache --help" for the flags
that override them.
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}
