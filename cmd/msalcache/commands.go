// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	stdJSON "encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/logger"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/tokencache"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// cli holds the root flags shared by every command.
type cli struct {
	lookup envconfig.Lookuper

	backend string
	file    string
	encrypt bool
}

// session is an opened cache. store is the cache's Persistence, which also backs the
// plugin of tc.
type session struct {
	tc    *tokencache.TokenCache
	store persistence.Persistence
}

// load reads the stored cache into tc. Commands that use hook-running TokenCache
// methods don't need it.
func (s session) load(ctx context.Context) error {
	b, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("couldn't load the token cache: %w", err)
	}
	return s.tc.Unmarshal(b)
}

// newRootCmd returns the msalcache command. lookup is where settings are read from; nil
// means the process environment.
func newRootCmd(lookup envconfig.Lookuper) *cobra.Command {
	c := &cli{lookup: lookup}
	root := &cobra.Command{
		Use:          "msalcache",
		Short:        "Inspect and edit an MSAL token cache",
		SilenceUsage: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&c.backend, "backend", "", "where the cache is stored: file, keyring, valkey or keyvault (overrides MSALCACHE_BACKEND)")
	f.StringVar(&c.file, "file", "", "path of the cache file (overrides MSALCACHE_FILE)")
	f.BoolVar(&c.encrypt, "encrypt", false, "the cache is encrypted with a passphrase (overrides MSALCACHE_ENCRYPT)")

	root.AddCommand(c.accountsCmd(), c.removeCmd(), c.kvCmd(), c.sectionsCmd())
	return root
}

// config reads the settings and applies the root flags to them.
func (c *cli) config(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(cmd.Context(), c.lookup)
	if err != nil {
		return cfg, err
	}
	if c.backend != "" {
		cfg.Backend = c.backend
	}
	if c.file != "" {
		cfg.File.Path = c.file
	}
	if fl := cmd.Flag("encrypt"); fl != nil && fl.Changed {
		cfg.Encryption.Enabled = c.encrypt
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseLevel(s string) (logger.Level, error) {
	switch l := logger.Level(strings.ToLower(s)); l {
	case logger.Debug, logger.Info, logger.Warn, logger.Err:
		return l, nil
	}
	return "", fmt.Errorf("unknown log level %q, want one of debug, info, warn, error", s)
}

// withSession opens the configured cache for the duration of fn.
func (c *cli) withSession(fn func(cmd *cobra.Command, args []string, s session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := c.config(cmd)
		if err != nil {
			return err
		}
		level, err := parseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		stderr := cmd.ErrOrStderr()
		log := logger.New(func(level, message string) {
			fmt.Fprintf(stderr, "%s: %s\n", level, message)
		}, level)

		store, closer, err := openBackend(cmd.Context(), cfg, stderr)
		if err != nil {
			return err
		}
		defer closer()

		tc := tokencache.New(
			tokencache.WithPlugin(persistence.NewPlugin(store, persistence.WithLogger(log))),
			tokencache.WithLogger(log, cfg.Log.PII),
		)
		return fn(cmd, args, session{tc: tc, store: store})
	}
}

func (c *cli) accountsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts in the cache",
		Args:  cobra.NoArgs,
		RunE: c.withSession(func(cmd *cobra.Command, _ []string, s session) error {
			if output != outputTable && output != outputJSON {
				return fmt.Errorf("unknown output format %q, want table or json", output)
			}
			accounts, err := s.tc.Accounts(cmd.Context())
			if err != nil {
				return err
			}
			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), accounts)
			}
			writeAccounts(cmd.OutOrStdout(), accounts)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")
	return cmd
}

func writeAccounts(w io.Writer, accounts []tokencache.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, text.FgYellow.Sprint("No accounts found"))
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("HOME ACCOUNT ID"),
		text.FgHiCyan.Sprint("ENVIRONMENT"),
		text.FgHiCyan.Sprint("REALM"),
		text.FgHiCyan.Sprint("USERNAME"),
		text.FgHiCyan.Sprint("NAME"),
	})
	for _, a := range accounts {
		t.AppendRow(table.Row{a.HomeAccountID, a.Environment, a.Realm, a.Username, a.Name})
	}
	t.Render()
}

func (c *cli) removeCmd() *cobra.Command {
	var realm, environment string
	cmd := &cobra.Command{
		Use:   "remove HOME_ACCOUNT_ID",
		Short: "Remove an account and its tokens from the cache",
		Long: `Remove an account and its ID, access and refresh tokens from the cache.
Without --realm the account is removed from every tenant. App metadata is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: c.withSession(func(cmd *cobra.Command, args []string, s session) error {
			ctx := cmd.Context()
			accounts, err := s.tc.Accounts(ctx)
			if err != nil {
				return err
			}
			var matched []tokencache.Account
			for _, a := range accounts {
				if !strings.EqualFold(a.HomeAccountID, args[0]) {
					continue
				}
				if environment != "" && !strings.EqualFold(a.Environment, environment) {
					continue
				}
				if realm != "" && !strings.EqualFold(a.Realm, realm) {
					continue
				}
				matched = append(matched, a)
			}
			if len(matched) == 0 {
				return fmt.Errorf("%s: %w", args[0], tokencache.ErrAccountNotFound)
			}

			removed := map[string]bool{}
			for _, a := range matched {
				if realm == "" {
					// One removal per environment covers every tenant.
					if removed[strings.ToLower(a.Environment)] {
						continue
					}
					removed[strings.ToLower(a.Environment)] = true
					a.Realm = ""
				}
				if err := s.tc.RemoveAccount(ctx, a); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s from %s\n", text.FgGreen.Sprint("✓"), a.Username, a.Environment)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&realm, "realm", "", "only remove the account from this tenant")
	cmd.Flags().StringVar(&environment, "environment", "", "only remove the account from this environment, such as login.microsoftonline.com")
	return cmd
}

func (c *cli) kvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kv",
		Short: "Print every cache entry by key as JSON",
		Args:  cobra.NoArgs,
		RunE: c.withSession(func(cmd *cobra.Command, _ []string, s session) error {
			if err := s.load(cmd.Context()); err != nil {
				return err
			}
			kv := s.tc.KVStore()
			out := make(map[string]stdJSON.RawMessage, len(kv))
			for k, v := range kv {
				b, err := tokencache.MarshalEntry(v)
				if err != nil {
					return fmt.Errorf("entry %s: %w", k, err)
				}
				out[k] = b
			}
			return writeJSON(cmd.OutOrStdout(), out)
		}),
	}
}

func (c *cli) sectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "Count the entries of each cache section",
		Args:  cobra.NoArgs,
		RunE: c.withSession(func(cmd *cobra.Command, _ []string, s session) error {
			if err := s.load(cmd.Context()); err != nil {
				return err
			}
			counts, unknown := s.tc.Sections()
			w := cmd.OutOrStdout()

			t := newTable(w)
			t.AppendHeader(table.Row{
				text.FgHiCyan.Sprint("SECTION"),
				text.FgHiCyan.Sprint("ENTRIES"),
				text.FgHiCyan.Sprint("UNRECOGNIZED"),
				text.FgHiCyan.Sprint("FOREIGN KEYS"),
			})
			for _, sc := range counts {
				t.AppendRow(table.Row{sc.Name, sc.Entries, sc.Unrecognized, sc.ForeignKeys})
			}
			t.Render()

			if len(unknown) > 0 {
				sort.Strings(unknown)
				fmt.Fprintf(w, "%s %s\n", text.FgYellow.Sprint("Unknown sections:"), strings.Join(unknown, ", "))
			}
			return nil
		}),
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := stdJSON.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
