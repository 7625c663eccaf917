package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/janovincze/idbroker/internal/api/handlers"
	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/services"
	"github.com/janovincze/idbroker/internal/config"
	"github.com/janovincze/idbroker/internal/crypto"
	"github.com/janovincze/idbroker/internal/database"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/oidc/providers"
	"github.com/janovincze/idbroker/internal/vault"
)

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:               "idbroker",
		Short:             "idbroker manages OAuth and OpenID Connect login sources",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSourceTypesCmd())
	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newMigrateCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := handlers.NewVersionResponse("")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "idbroker %s\n", info.Version)
			fmt.Fprintf(out, "Commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "Built: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
			return nil
		},
	}
}

func newSourceTypesCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "source-types",
		Short: "List the known provider types and their default endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newLocalService(oidc.DefaultFetcherConfig())
			return writeJSON(cmd.OutOrStdout(), service.SourceTypes(name))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Only show the provider type with this name")

	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var (
		req     models.DiscoverRequest
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Resolve a source configuration against its provider without storing it",
		Long: `Fetch the provider's OpenID configuration and key set, fill in any
endpoints that were not given explicitly and check that the result is
complete for the provider type. Field errors are printed to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fetcherCfg := oidc.DefaultFetcherConfig()
			fetcherCfg.Timeout = timeout
			service := newLocalService(fetcherCfg)

			resp, err := service.Discover(cmd.Context(), &req)
			var validationErr *services.ValidationError
			if errors.As(err, &validationErr) {
				for _, fe := range validationErr.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", fe.Field, fe.Message)
				}
				return errors.New("configuration is invalid")
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.ProviderType, "type", "", "Provider type, as listed by source-types")
	flags.StringVar(&req.OIDCWellKnownURL, "well-known-url", "", "OpenID configuration URL")
	flags.StringVar(&req.OIDCJWKSURL, "jwks-url", "", "JWKS URL")
	flags.StringVar(&req.AuthorizationURL, "authorization-url", "", "Authorization endpoint")
	flags.StringVar(&req.AccessTokenURL, "access-token-url", "", "Token endpoint")
	flags.StringVar(&req.ProfileURL, "profile-url", "", "Userinfo endpoint")
	flags.DurationVar(&timeout, "timeout", oidc.DefaultTimeout, "Timeout for each remote fetch")
	_ = cmd.MarkFlagRequired("type") //nolint:errcheck

	return cmd
}

func newTokenCmd() *cobra.Command {
	var req models.IssueTokenRequest

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API bearer token",
		Long: `Sign a bearer token for the admin API with IDBROKER_AUTH_JWT_SECRET.
Without --permission the token carries every permission.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			tokens, err := services.NewTokenService(cfg.Auth)
			if err != nil {
				return err
			}

			token, expiresAt, err := tokens.Issue(&req)
			var validationErr *services.ValidationError
			if errors.As(err, &validationErr) {
				for _, fe := range validationErr.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", fe.Field, fe.Message)
				}
				return errors.New("token request is invalid")
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Token subject")
	cmd.Flags().StringSliceVar(&req.Permissions, "permission", nil, "Granted permission, repeatable")
	_ = cmd.MarkFlagRequired("subject") //nolint:errcheck

	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a base64 key for IDBROKER_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKeyBase64()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending source store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			secrets, err := vault.NewSecretProvider(ctx, &cfg.Vault, slog.Default())
			if err != nil {
				return err
			}
			defer secrets.Close() //nolint:errcheck
			cfg.ApplySecrets(ctx, secrets, slog.Default())

			dbCfg := cfg.Database
			dbCfg.MigrateOnStart = false
			db, err := database.Open(ctx, dbCfg, slog.Default())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			version, err := database.Migrate(db)
			if err != nil {
				return err
			}
			latest, err := database.LatestVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (latest embedded %d)\n", version, latest)
			return nil
		},
	}
}

// newLocalService builds a source service for operations that never touch
// the store.
func newLocalService(fetcherCfg oidc.FetcherConfig) *services.OAuthSourceService {
	logger := slog.Default()
	registry := providers.NewRegistry()
	validator := services.NewSourceConfigValidator(registry, oidc.NewFetcher(nil, fetcherCfg, logger), logger)
	return services.NewOAuthSourceService(nil, registry, validator, "", logger)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
