package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql DSNs (default)
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres:// URLs
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
)

// DetectDriver picks the sql driver name from the shape of the database URL
func DetectDriver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return driverPostgres
	}
	return driverMySQL
}

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver := DetectDriver(databaseURL)
	if driver == driverMySQL && !strings.Contains(databaseURL, "parseTime=") {
		// Dates are scanned into time values
		sep := "?"
		if strings.Contains(databaseURL, "?") {
			sep = "&"
		}
		databaseURL += sep + "parseTime=true"
	}

	db, err := sqlx.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ExecuteReadOnlyPing executes a ping within a transaction that is always rolled back
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // never committed

	var result int
	if err := tx.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database ping query failed: %w", err)
	}

	return nil
}
