package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect selects the SQL flavour of a connection
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// driverName returns the database/sql driver registered for the dialect
func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// DB wraps the database connection
type DB struct {
	*sql.DB
	dialect Dialect
	dsn     string
}

// Connect establishes a connection to the database
func Connect(dialect Dialect, connectionString string) (*DB, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}

	db, err := sql.Open(dialect.driverName(), connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(4)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	return &DB{DB: db, dialect: dialect, dsn: connectionString}, nil
}

// Wrap adopts an existing connection, e.g. a test double
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

// Dialect returns the SQL flavour of the connection
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// RunMigrations applies all pending embedded migrations for the dialect.
// Migrations run on a dedicated connection that is closed afterwards.
func (db *DB) RunMigrations(logger *zap.Logger) error {
	if db.dsn == "" {
		return errors.New("no connection string to migrate with")
	}

	conn, err := sql.Open(db.dialect.driverName(), db.dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	var driver migratedb.Driver
	switch db.dialect {
	case DialectSQLite:
		driver, err = sqlite3.WithInstance(conn, &sqlite3.Config{})
	default:
		driver, err = postgres.WithInstance(conn, &postgres.Config{})
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.dialect), driver)
	if err != nil {
		source.Close()
		driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("Migrations applied",
		zap.String("dialect", string(db.dialect)),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
