// Command dlesctl runs operator tasks against the dles database.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dles/internal/config"
	"dles/internal/db"
	"dles/internal/embedcheck"
	"dles/internal/jobs"
	"dles/internal/logging"
	"dles/internal/roles"
	"dles/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type app struct {
	cfg    config.Config
	logger *zap.Logger
	conn   *gorm.DB
}

func main() {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "dlesctl",
		Short:         "Operator tasks for the dles dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := config.LoadDotEnv(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			a.cfg = config.Load()
			logger, err := logging.New(a.cfg.Env)
			if err != nil {
				return err
			}
			a.logger = logger.Named("cli")
			conn, err := db.Open(a.cfg)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			a.conn = conn
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(
		a.seedCmd(),
		a.promoteCmd(),
		a.cleanupPresetsCmd(),
		a.scanEmbedsCmd(),
		a.cleanupRacesCmd(),
		a.tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Migrate the schema and upsert games from a file or the built-in catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.Migrate(a.conn); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			path, _ := cmd.Flags().GetString("file")
			records := db.DefaultGames()
			if path != "" {
				var err error
				records, err = db.ReadGamesFile(path)
				if err != nil {
					return err
				}
			}
			result, err := db.UpsertGames(a.conn.WithContext(cmd.Context()), records)
			if err != nil {
				return err
			}
			for _, failure := range result.Errors {
				a.logger.Warn("game rejected",
					zap.Int("index", failure.Index),
					zap.String("link", failure.Link),
					zap.String("error", failure.Error),
				)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, failed %d\n", result.Created, result.Updated, result.Failed)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "games file (.json or .csv); defaults to the built-in catalog")
	return cmd
}

func (a *app) promoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <email> [role]",
		Short: "Set the role of a user",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("role")
			if len(args) == 2 {
				raw = args[1]
			}
			role, ok := roles.Parse(raw)
			if !ok {
				return fmt.Errorf("unknown role %q", raw)
			}
			user, err := db.PromoteUser(a.conn.WithContext(cmd.Context()), args[0], role)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no user with email %s", args[0])
			}
			if err != nil {
				return err
			}
			a.logger.Info("user promoted", zap.String("user_id", user.ID), zap.String("role", string(role)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringP("role", "r", string(roles.Owner), "role to assign")
	return cmd
}

func (a *app) cleanupPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-presets",
		Short: "Remove games that block embedding from preset lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []db.PresetCleanup
			err := a.conn.WithContext(cmd.Context()).Transaction(func(tx *gorm.DB) error {
				var err error
				results, err = db.CleanupPresetLists(tx)
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Skipped {
					fmt.Fprintf(out, "%-30s skipped (%d games)\n", r.Name, r.Kept)
					continue
				}
				fmt.Fprintf(out, "%-30s removed %d, kept %d\n", r.Name, r.Removed, r.Kept)
			}
			return nil
		},
	}
}

func (a *app) scanEmbedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan-embeds [game-id...]",
		Short: "Check whether games allow embedding and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if reset, _ := cmd.Flags().GetBool("reset"); reset {
				count, err := jobs.ResetEmbedFlags(ctx, a.conn, args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d games\n", count)
				return nil
			}
			checker := embedcheck.NewChecker(nil, time.Duration(a.cfg.EmbedCheckTimeoutSeconds)*time.Second)
			report, err := jobs.ScanGames(ctx, a.conn, checker, a.cfg.EmbedCheckConcurrency, args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d of %d: %d allowed, %d blocked, %d updated\n",
				report.Checked, report.Total, report.Allowed, report.Blocked, report.Updated)
			for _, e := range report.Errors {
				fmt.Fprintf(out, "  %s (%s): %s\n", e.Title, e.Link, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "clear stored embed flags instead of scanning")
	return cmd
}

func (a *app) cleanupRacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-races",
		Short: "Delete stale waiting races and close abandoned active ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup, err := jobs.CleanupRaces(cmd.Context(), a.conn, time.Now(),
				time.Duration(a.cfg.RaceWaitingTTLHours)*time.Hour,
				time.Duration(a.cfg.RaceActiveTTLHours)*time.Hour,
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d, completed %d\n", len(cleanup.Deleted), len(cleanup.Completed))
			return nil
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			ctx := cmd.Context()
			var user db.User
			if err := a.conn.WithContext(ctx).First(&user, "email = ?", args[0]).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("no user with email %s", args[0])
				}
				return err
			}
			sessions := server.NewSessionManager(a.conn, a.cfg.SessionSecret, time.Duration(a.cfg.SessionTTLHours)*time.Hour)
			token, session, err := sessions.Issue(ctx, user.ID, ttl)
			if err != nil {
				return err
			}
			a.logger.Info("session issued", zap.String("user_id", user.ID), zap.Time("expires_at", session.ExpiresAt))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "session lifetime; defaults to SESSION_TTL_HOURS")
	return cmd
}
