package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const migrationsDirName = "migrations"

// FindMigrationsDir walks up from start, then looks next to the executable.
func FindMigrationsDir(start string) (string, error) {
	candidates := []string{}
	current := start
	for i := 0; i < 6; i++ {
		candidates = append(candidates, filepath.Join(current, migrationsDirName))
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, migrationsDirName),
			filepath.Join(exeDir, "..", migrationsDirName),
			filepath.Join(exeDir, "..", "..", migrationsDirName),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", errors.New("migrations directory not found")
}

// Migrate applies cmd ("up", "down", "steps N", "version", "force N") and
// returns the schema version afterwards.
func Migrate(dbURL, migrationsPath string, cmd string, arg string) (uint, bool, error) {
	m, err := migrate.New("file://"+migrationsPath, dbURL)
	if err != nil {
		return 0, false, fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	switch cmd {
	case "", "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil || n == 0 {
			return 0, false, fmt.Errorf("steps needs a non-zero integer, got %q", arg)
		}
		err = m.Steps(n)
	case "force":
		v, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return 0, false, fmt.Errorf("force needs a version, got %q", arg)
		}
		err = m.Force(v)
	case "version":
	default:
		return 0, false, fmt.Errorf("unknown migrate command %q", cmd)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
