package db

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DB struct {
	*sql.DB
	driver string
}

func NewDB(db *sql.DB) *DB {
	return &DB{DB: db, driver: DriverPostgres}
}

// Open connects to a postgres or sqlite3 database.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if driver == DriverSQLite {
		// a single writer keeps the conditional inserts serialized
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to configure sqlite3")
		}
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", driver)
	}
	return &DB{DB: conn, driver: driver}, nil
}

func (db *DB) Driver() string {
	return db.driver
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS member_mappings (
		map_id TEXT NOT NULL,
		member_name TEXT NOT NULL,
		member_type TEXT NOT NULL,
		exclusive BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (map_id, member_name, member_type)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS member_mappings_exclusive
		ON member_mappings (member_name, member_type) WHERE exclusive`,
	`CREATE UNIQUE INDEX IF NOT EXISTS member_mappings_exclusive_scope
		ON member_mappings (map_id, member_type) WHERE exclusive`,
	`CREATE TABLE IF NOT EXISTS networks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		tenant_id TEXT NOT NULL DEFAULT '',
		external BOOLEAN NOT NULL DEFAULT FALSE,
		network_view TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS subnets (
		id TEXT PRIMARY KEY,
		network_id TEXT NOT NULL REFERENCES networks (id),
		name TEXT NOT NULL DEFAULT '',
		tenant_id TEXT NOT NULL DEFAULT '',
		cidr TEXT NOT NULL,
		gateway_ip TEXT NOT NULL DEFAULT '',
		allocation_pools TEXT NOT NULL DEFAULT '',
		dns_nameservers TEXT NOT NULL DEFAULT '',
		network_view TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS subnets_network_view ON subnets (network_view)`,
	`CREATE TABLE IF NOT EXISTS ip_allocations (
		subnet_id TEXT NOT NULL REFERENCES subnets (id),
		address TEXT NOT NULL,
		hostname TEXT NOT NULL DEFAULT '',
		mac_address TEXT NOT NULL DEFAULT '',
		port_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (subnet_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS network_servers (
		network_id TEXT NOT NULL,
		member_type TEXT NOT NULL,
		servers TEXT NOT NULL,
		PRIMARY KEY (network_id, member_type)
	)`,
}

// Migrate creates the tables and indexes the repositories rely on.
func (db *DB) Migrate() error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique or primary key
// violation from either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
