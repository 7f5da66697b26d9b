// Package main is the entry point for the deskmesh CLI.
// It provides one-off operations against the support pipeline: running a
// single query, seeding a database and validating configuration files.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deskmesh/deskmesh/pkg/agents"
	"github.com/deskmesh/deskmesh/pkg/config"
	"github.com/deskmesh/deskmesh/pkg/logging"
	"github.com/deskmesh/deskmesh/pkg/pipeline"
	"github.com/deskmesh/deskmesh/pkg/storage"
)

const defaultLogLevel = "warn"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for the deskmesh CLI.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deskmesh",
		Short: "Support pipeline tooling",
		Long: `Command line tooling for the deskmesh support pipeline.

Run one-off queries against an in-process pipeline, seed a SQLite
database with the demo dataset, or validate a configuration file.

Example:
  deskmesh query --user alice@example.com -- "I need a refund for my last invoice"`,
	}

	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newValidateCmd())

	return rootCmd
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [flags] -- <text>",
		Short: "Run one query through an in-process pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	cmd.Flags().StringP("user", "u", "", "User name or email submitting the query")
	cmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	cmd.Flags().String("db", "", "SQLite database path (defaults to a seeded in-memory store)")
	cmd.Flags().String("session", "", "Session identifier")
	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	logger := newCmdLogger(cmd)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openQueryStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc, err := pipeline.New(pipeline.Options{
		Logger:        logger,
		Directory:     store,
		KnowledgeBase: store,
		Feedback:      store,
		Notifier:      agents.NewLogNotifier(logger),
		RateLimiter:   cfg.RateLimit.LimiterConfig(),
		Input:         cfg.Safety.InputConfig(),
		Output:        cfg.Safety.OutputConfig(),
		Escalation:    cfg.Workflow.EscalationConfig(),
		SendTimeout:   cfg.Workflow.SendTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")

	resp, err := svc.Handle(cmd.Context(), pipeline.Request{
		Text:      strings.Join(args, " "),
		UserRef:   user,
		SessionID: session,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// openQueryStore opens the store selected by the --db flag or the
// configuration, falling back to a seeded in-memory store.
func openQueryStore(cmd *cobra.Command, cfg *config.Config) (storage.Store, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" && cfg.Storage.Driver == "sqlite" {
		path = cfg.Storage.Path
	}

	if path != "" {
		s, err := storage.NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", path, err)
		}
		return s, nil
	}

	s := storage.NewMemoryStore()
	storage.SeedMemory(s)
	return s, nil
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create and seed a SQLite database with the demo dataset",
		RunE:  runSeed,
	}
	cmd.Flags().String("db", "", "SQLite database path")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	logger := newCmdLogger(cmd)

	path, _ := cmd.Flags().GetString("db")
	s, err := storage.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", path, err)
	}
	defer func() { _ = s.Close() }()

	if err := storage.SeedSQLite(cmd.Context(), s); err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}

	logger.Info("database seeded", "path", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s\n", path)
	return nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE:  runValidate,
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if _, err := config.Load(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid\n", path)
	return nil
}

// loadConfig loads the file named by --config, or defaults when absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newCmdLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.NewLogger(logging.Config{Level: level, Pretty: true})
}
