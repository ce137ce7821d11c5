package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/doseledger/doseledger/internal/config"
	"github.com/doseledger/doseledger/internal/domain/finance"
	"github.com/doseledger/doseledger/internal/platform/auth"
	"github.com/doseledger/doseledger/internal/platform/cache"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/money"
)

const migrateLockKey = "lock:migrate"

func main() {
	rootCmd := &cobra.Command{
		Use:   "doseledger-server",
		Short: "Clinic dosing and financial reconciliation API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger writes JSON to stdout, or a console format in development.
func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level := zerolog.InfoLevel
	if cfg != nil && cfg.LogLevel != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
			level = l
		}
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  "doseledger",
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			release, err := migrationLock(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// migrationLock serializes `migrate up` across replicas through Redis. Without
// REDIS_URL it is a no-op.
func migrationLock(ctx context.Context, cfg *config.Config) (func(), error) {
	if cfg.RedisURL == "" {
		return func() {}, nil
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisURL, "doseledger")
	if err != nil {
		return nil, err
	}
	return obtainLock(ctx, rc, migrateLockKey, 5*time.Minute, func() { _ = rc.Close() })
}

func obtainLock(ctx context.Context, l cache.Locker, key string, ttl time.Duration, cleanup func()) (func(), error) {
	unlock, err := l.Obtain(ctx, key, ttl)
	if errors.Is(err, cache.ErrLockHeld) {
		cleanup()
		return nil, fmt.Errorf("another migration is running")
	}
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("obtain migration lock: %w", err)
	}
	return func() {
		_ = unlock(context.Background())
		cleanup()
	}, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := issueToken(cfg, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (patient id for the patient role)")
	cmd.Flags().StringSlice("role", []string{auth.RoleStaff}, "Granted roles (admin, staff, patient)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func issueToken(cfg *config.Config, subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("--subject is required")
	}
	for _, r := range roles {
		switch r {
		case auth.RoleAdmin, auth.RoleStaff:
		case auth.RolePatient:
			if _, err := uuid.Parse(subject); err != nil {
				return "", fmt.Errorf("patient tokens need a patient id subject: %w", err)
			}
		default:
			return "", fmt.Errorf("unknown role %q", r)
		}
	}
	return auth.IssueToken(jwtConfig(cfg), subject, roles, ttl)
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

func savingsParams(cfg *config.Config) finance.SavingsParams {
	p := finance.DefaultSavingsParams()
	if cfg.SavingsThresholdMg > 0 {
		p.ThresholdMg = cfg.SavingsThresholdMg
	}
	if cfg.SavingsDosesPerBox > 0 {
		p.DosesPerBox = cfg.SavingsDosesPerBox
	}
	if cfg.SavingsConsultPrice >= 0 {
		p.ConsultPrice = money.FromFloat(cfg.SavingsConsultPrice)
	}
	return p
}
