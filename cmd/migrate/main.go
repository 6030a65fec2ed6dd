package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/retailops-backend/pkg/bootstrap"
	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/migrate"
)

type flags struct {
	cmd, dir, name, version string
}

func main() {
	var f flags
	flag.StringVar(&f.cmd, "cmd", "up", "migration command: up|up-by-one|down|redo|status|version|to|create|validate")
	flag.StringVar(&f.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&f.name, "name", "", "migration name (for create)")
	flag.StringVar(&f.version, "version", "", "target version YYYYMMDDHHMMSS (for to)")
	flag.Parse()

	if err := run(context.Background(), f); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	// create and validate only touch the filesystem
	switch f.cmd {
	case "create":
		if f.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(f.dir, f.name)
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(f.dir); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		fmt.Println("migration validation passed")
		return nil
	}

	rt, err := bootstrap.Start(ctx, "migrate")
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "shutdown", err)
		}
	}()
	if rt.Config.DB.Driver == config.DriverSQLite {
		return errors.New("migrations target postgres; unset RETAILOPS_USE_SQLITE")
	}

	sqlDB, err := rt.DB.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}

	ctx = rt.Scope(ctx, map[string]any{"cmd": f.cmd, "dir": f.dir})
	rt.Logger.Info(ctx, "migrate ready")

	if f.cmd != "to" {
		err = migrate.Run(ctx, sqlDB, f.dir, f.cmd)
	} else {
		err = migrateTo(ctx, sqlDB, f.dir, f.version)
	}
	if err != nil {
		return err
	}
	rt.Logger.Info(ctx, "migration command finished")
	return nil
}

func migrateTo(ctx context.Context, sqlDB *sql.DB, dir, version string) error {
	if version == "" {
		return errors.New("missing -version for to")
	}
	target, err := migrate.ParseVersion(version)
	if err != nil {
		return err
	}
	return migrate.MigrateTo(ctx, sqlDB, dir, target)
}
