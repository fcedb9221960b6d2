package store

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/config"
	"github.com/zulandar/ticketyard/internal/db"
	"gorm.io/gorm"
)

// Open builds the Store selected by cfg.Store.Backend. SQL backends are
// migrated before use. The returned close func releases the connection.
func Open(cfg *config.Config, logger zerolog.Logger) (Store, func() error, error) {
	noop := func() error { return nil }

	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Store.Dir, logger), noop, nil
	case config.BackendSQLite:
		gdb, err = db.ConnectSQLite(cfg.Store.SQLitePath)
	case config.BackendMySQL:
		gdb, err = db.Connect(MySQLConn(cfg.Store.MySQL))
	default:
		return nil, noop, fmt.Errorf("store: unsupported backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, noop, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return nil, noop, err
	}
	closeFn := func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return NewGormStore(gdb), closeFn, nil
}

// MySQLConn converts the mysql store settings into connection parameters,
// resolving the password from the environment.
func MySQLConn(m config.MySQLConfig) db.ConnConfig {
	return db.ConnConfig{
		Host:     m.Host,
		Port:     m.Port,
		User:     m.User,
		Password: m.Password(),
		Database: m.Database,
	}
}
