package data

import (
	"embed"
	"errors"
	"fmt"
	"time"
	"yuanyue-cms/internal/config"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// NewDB creates a new database connection pool for the configured driver.
func NewDB(cfg config.DBConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN
	if cfg.Driver == "mysql" {
		// published_at must scan into time.Time.
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		dsn = mc.FormatDSN()
	}

	// sqlx.Connect opens a connection and pings it to verify it's alive.
	db, err := sqlx.Connect(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "sqlite3" {
		// One writer at a time, and every caller sees the same in-memory database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// ApplyMigrations runs all up migrations embedded for the given driver.
func ApplyMigrations(db *sqlx.DB, driver string) error {
	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to open migrations for %s: %w", driver, err)
	}

	var instance database.Driver
	switch driver {
	case "mysql":
		instance, err = migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	case "sqlite3":
		instance, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	case "pgx":
		instance, err = migratepgx.WithInstance(db.DB, &migratepgx.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close is not called: it would close the shared *sql.DB as well.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
