package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/models"
	"github.com/suPer8Hu/codemate/migrations"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER=%q", driver)
	}
}

// Connect opens the database and sizes the pool. sqlite gets a single
// connection since it serializes writers anyway.
func Connect(driver, dsn string) (*gorm.DB, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return gdb, nil
}

// Migrate brings the schema up to date. mysql and postgres run the embedded
// SQL migrations; sqlite (dev and tests) uses AutoMigrate.
func Migrate(gdb *gorm.DB, driver, dsn string) error {
	if driver == DriverSQLite {
		return AutoMigrate(gdb)
	}

	url, dir, err := migrateTarget(driver, dsn)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return err
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.User{}, &chat.Conversation{}, &chat.Message{}, &chat.Job{})
}

// migrateTarget turns a gorm DSN into a golang-migrate database URL.
func migrateTarget(driver, dsn string) (url, dir string, err error) {
	switch driver {
	case "", DriverMySQL:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		if !strings.Contains(dsn, "multiStatements=") {
			dsn += sep + "multiStatements=true"
		}
		return "mysql://" + dsn, "mysql", nil
	case DriverPostgres:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			return dsn, "postgres", nil
		}
		return "", "", fmt.Errorf("postgres DSN must be a postgres:// URL for migrations")
	default:
		return "", "", fmt.Errorf("no migrations for driver %q", driver)
	}
}
