package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/yourusername/polegion-api/internal/config"
	"github.com/yourusername/polegion-api/pkg/database"
)

// Утилита обслуживания схемы: up, down N, force V (сброс dirty-состояния), version.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	command := flag.String("cmd", "up", "up | down | force | version")
	steps := flag.Int("steps", 1, "number of migrations to roll back for down")
	version := flag.Int("version", -1, "version for force")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	dbCfg, err := config.LoadDatabase(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("postgres", dbCfg.PostgresConnectionString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	m, err := database.NewMigrator(db, dbCfg.MigrationsPath)
	if err != nil {
		log.Fatal(err)
	}

	if err := execute(m, *command, *steps, *version); err != nil {
		log.Fatal(err)
	}
}

func execute(m *migrate.Migrate, command string, steps, version int) error {
	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if steps <= 0 {
			return fmt.Errorf("steps must be positive, got %d", steps)
		}
		if err := m.Steps(-steps); err != nil {
			return err
		}
	case "force":
		if version < 0 {
			return fmt.Errorf("force requires -version")
		}
		fmt.Printf("Forcing migration version to %d to clean dirty state...\n", version)
		if err := m.Force(version); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Schema version %d (dirty: %t)\n", v, dirty)
	return nil
}
