package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Executor is satisfied by both *sql.DB and *sql.Tx, so store code can run
// inside or outside a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Client holds the database handle and the dialect used to build queries.
type Client struct {
	DB      *sql.DB
	Driver  *entsql.Driver
	dialect string
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for database connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// DefaultPoolConfig returns the pool used by the API server.
// Request handlers hold a connection only for the duration of one request.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()

	// SSL mode overrides any sslmode already present in the URL
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}

	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// Open connects to postgres or sqlite3, configures the pool and verifies the
// connection. Migrations are applied separately with Migrate.
func Open(ctx context.Context, driverName, databaseURL string, poolCfg PoolConfig, sslCfg *SSLConfig, log logger.Logger) (*Client, error) {
	connStr := databaseURL
	switch driverName {
	case dialect.Postgres:
		var err error
		connStr, err = BuildConnectionString(databaseURL, sslCfg)
		if err != nil {
			return nil, fmt.Errorf("failed building connection string: %w", err)
		}
		if sslCfg != nil && sslCfg.Mode != "" && sslCfg.Mode != "disable" {
			log.Info("database SSL enabled", "mode", sslCfg.Mode, "root_cert", sslCfg.RootCertPath)
		}
	case dialect.SQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driverName)
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", driverName, err)
	}

	db.SetMaxOpenConns(poolCfg.MaxOpenConns)
	db.SetMaxIdleConns(poolCfg.MaxIdleConns)
	db.SetConnMaxLifetime(poolCfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(poolCfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection pool configured",
		"driver", driverName,
		"max_open", poolCfg.MaxOpenConns,
		"max_idle", poolCfg.MaxIdleConns,
		"max_lifetime", poolCfg.ConnMaxLifetime.String(),
	)

	return NewFromDB(db, driverName), nil
}

// NewFromDB wraps an already opened *sql.DB. dialectName is dialect.Postgres or dialect.SQLite.
func NewFromDB(db *sql.DB, dialectName string) *Client {
	return &Client{
		DB:      db,
		Driver:  entsql.OpenDB(dialectName, db),
		dialect: dialectName,
	}
}

// Dialect returns the SQL dialect name.
func (c *Client) Dialect() string {
	return c.dialect
}

// Builder returns a dialect-aware query builder.
func (c *Client) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// WithTx runs fn inside a transaction. Any error or panic rolls the
// transaction back; otherwise it is committed.
func (c *Client) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertID executes an insert and returns the generated id.
func (c *Client) InsertID(ctx context.Context, ex Executor, insert *entsql.InsertBuilder) (int, error) {
	if c.dialect == dialect.Postgres {
		query, args := insert.Returning("id").Query()
		var id int
		if err := ex.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args := insert.Query()
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// Exec builds and executes a statement, returning the affected row count.
func Exec(ctx context.Context, ex Executor, q entsql.Querier) (int64, error) {
	query, args := q.Query()
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count runs a single-column COUNT query.
func Count(ctx context.Context, ex Executor, q entsql.Querier) (int, error) {
	query, args := q.Query()
	var n int
	if err := ex.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.Driver.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.DB.Stats()
}
