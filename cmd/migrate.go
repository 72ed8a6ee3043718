package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeack/exchange-rate/internal/config"
	"github.com/zeack/exchange-rate/internal/db"
)

var (
	downSteps      int
	skipClickHouse bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the MySQL schema and ensure the ClickHouse tables",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		err = withMigrator(cfg, func(m *db.Migrator) error {
			if err := m.Up(); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			return printVersion(cmd, m)
		})
		if err != nil {
			return err
		}

		if skipClickHouse {
			return nil
		}
		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := db.EnsureClickHouseSchema(ctx, chDB); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		cmd.Println(">> ClickHouse schema ready")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return withMigrator(cfg, func(m *db.Migrator) error {
			if err := m.Down(downSteps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			return printVersion(cmd, m)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return withMigrator(cfg, func(m *db.Migrator) error { return printVersion(cmd, m) })
	},
}

func init() {
	migrateUpCmd.Flags().BoolVar(&skipClickHouse, "skip-clickhouse", false, "only migrate MySQL")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func withMigrator(cfg config.Config, fn func(*db.Migrator) error) error {
	m, err := db.NewMigrator(cfg.MySQL.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *db.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	cmd.Printf(">> schema version=%d dirty=%t\n", v, dirty)
	return nil
}
