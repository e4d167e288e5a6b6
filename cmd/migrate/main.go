package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dles/internal/config"
	"dles/internal/logging"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

const migrationsDir = "db/migrations"

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of migrations to apply; 0 applies all (up only)")
	create := flag.String("create", "", "create an empty migration pair with this name and exit")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := config.Load()
	logger := logging.Must(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if *create != "" {
		up, down, err := createMigration(migrationsDir, *create, time.Now())
		if err != nil {
			logger.Fatal("create migration failed", zap.Error(err))
		}
		logger.Info("migration created", zap.String("up", up), zap.String("down", down))
		return
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}
	m, err := migrate.New("file://"+migrationsDir, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("migration setup failed", zap.Error(err))
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("migration close failed", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		// Rolling everything back must be asked for explicitly.
		if *steps <= 0 {
			logger.Fatal("down requires -steps")
		}
		err = m.Steps(-*steps)
	default:
		logger.Fatal("unknown direction", zap.String("direction", *direction))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("database migration failed", zap.Error(err))
	}
	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		logger.Warn("could not read migration version", zap.Error(verr))
	}
	logger.Info("database migrations applied",
		zap.String("direction", *direction),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
}

// createMigration writes an empty up/down pair named after the current UTC
// timestamp.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	if strings.ContainsAny(name, " /\\") {
		return "", "", fmt.Errorf("migration name %q must not contain spaces or slashes", name)
	}
	base := fmt.Sprintf("%s_%s", now.UTC().Format("20060102150405"), name)
	upPath := filepath.Join(dir, base+".up.sql")
	downPath := filepath.Join(dir, base+".down.sql")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create migrations dir: %w", err)
	}
	if err := writeNew(upPath, "-- up migration\n"); err != nil {
		return "", "", err
	}
	if err := writeNew(downPath, "-- down migration\n"); err != nil {
		return "", "", err
	}
	return upPath, downPath, nil
}

func writeNew(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("file already exists: %s", path)
		}
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
