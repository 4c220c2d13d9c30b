// Package main provides portalctl, the command-line tool for operating the
// portal database and configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	portal "github.com/ferro-labs/operator-portal"
	"github.com/ferro-labs/operator-portal/internal/password"
	"github.com/ferro-labs/operator-portal/internal/store"
	"github.com/ferro-labs/operator-portal/internal/tariff"
	"github.com/ferro-labs/operator-portal/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "portalctl",
		Short:        "Operator portal command line tool",
		SilenceUsage: true,
	}
	root.AddCommand(
		newValidateCmd(),
		newVersionCmd(),
		newHashPasswordCmd(),
		newSeedAdminCmd(),
		newBackfillCmd(),
		newClientsCmd(),
	)
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a portal configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := portal.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := portal.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			fmt.Fprintf(out, "  Listen:    %s\n", cfg.Server.Addr)
			fmt.Fprintf(out, "  Database:  %s\n", cfg.Database.Driver)
			fmt.Fprintf(out, "  Cache TTL: %s\n", cfg.Cache.TTL)
			if cfg.RateLimit.RequestsPerSecond > 0 {
				fmt.Fprintf(out, "  Rate limit: %.2f req/s, burst %.0f\n", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portalctl %s\n", version.String())
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := password.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newSeedAdminCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the configured administrator account if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, users, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = users.Close() }()

			hash, err := password.Hash(cfg.Admin.Password)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			created, err := store.EnsureAdmin(contextOrBackground(cmd.Context()), users, cfg.Admin.FIO, cfg.Admin.Phone, hash)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "administrator %s created\n", cfg.Admin.Phone)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "administrator %s already exists\n", cfg.Admin.Phone)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the portal config file")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "backfill-tariffs",
		Short: "Assign the default tariff to users without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, users, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = users.Close() }()

			n, err := users.BackfillTariffs(contextOrBackground(cmd.Context()), tariff.DefaultID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d user(s) to tariff %s\n", n, tariff.DefaultID)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the portal config file")
	return cmd
}

func newClientsCmd() *cobra.Command {
	var configPath, search string
	var limit int
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List clients, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, users, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = users.Close() }()

			clients, err := users.ListClients(contextOrBackground(cmd.Context()), store.ClientQuery{Search: search, Limit: limit})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PHONE\tFIO\tBALANCE\tTARIFF\tSTATUS")
			for _, u := range clients {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n", u.Phone, u.FIO, u.Balance, tariff.Lookup(u.Tariff).Name, u.Status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the portal config file")
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive name or phone fragment")
	cmd.Flags().IntVar(&limit, "limit", store.MaxClients, "maximum number of clients")
	return cmd
}

// openStore loads the config at path (defaults when empty), applies the
// environment and opens the configured store.
func openStore(path string) (portal.Config, store.Store, error) {
	cfg := portal.DefaultConfig()
	if path != "" {
		loaded, err := portal.LoadConfig(path)
		if err != nil {
			return cfg, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	}
	portal.ApplyEnv(&cfg, os.Getenv)
	if err := portal.ValidateConfig(cfg); err != nil {
		return cfg, nil, err
	}
	users, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, users, nil
}

// contextOrBackground guards commands run without ExecuteContext.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
