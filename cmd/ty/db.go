package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/ticketyard/internal/config"
	"github.com/zulandar/ticketyard/internal/db"
	"github.com/zulandar/ticketyard/internal/store"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the session record table",
		Long:  "Migrates the session_records table of the configured SQL backend. The file backend needs no migration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ticketyard.yaml", "path to Ticketyard config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var gormDB *gorm.DB
	switch cfg.Store.Backend {
	case config.BackendFile:
		fmt.Fprintf(out, "Store backend is %q, nothing to migrate (records live in %s)\n", cfg.Store.Backend, cfg.Store.Dir)
		return nil
	case config.BackendSQLite:
		gormDB, err = db.ConnectSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Store.SQLitePath, err)
		}
		fmt.Fprintf(out, "Opened SQLite database %s\n", cfg.Store.SQLitePath)
	case config.BackendMySQL:
		m := cfg.Store.MySQL
		gormDB, err = db.Connect(store.MySQLConn(m))
		if err != nil {
			return fmt.Errorf("connect to %s at %s:%d: %w", m.Database, m.Host, m.Port, err)
		}
		fmt.Fprintf(out, "Connected to %s at %s:%d\n", m.Database, m.Host, m.Port)
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(out, "Migrated %d table(s)\n", len(db.AllModels()))
	return nil
}
