package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mailtriage/internal/metrics"
	"mailtriage/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when the requested parsed email does not exist
var ErrNotFound = errors.New("email not found")

const (
	parsedColumns = "id, from_address, to_address, subject, date, sender_ip, ollama_evaluation, raw_email_id"
	rawColumns    = "id, raw_content, parsed_email_id"
)

var schema = map[string][]string{
	driverPostgres: {
		`CREATE TABLE IF NOT EXISTS parsed_emails (
			id SERIAL PRIMARY KEY,
			from_address TEXT NOT NULL DEFAULT '',
			to_address TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			sender_ip VARCHAR(64),
			ollama_evaluation TEXT,
			raw_email_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS raw_emails (
			id SERIAL PRIMARY KEY,
			raw_content TEXT NOT NULL,
			parsed_email_id INTEGER REFERENCES parsed_emails(id)
		)`,
	},
	driverMySQL: {
		`CREATE TABLE IF NOT EXISTS parsed_emails (
			id INT AUTO_INCREMENT PRIMARY KEY,
			from_address TEXT NOT NULL,
			to_address TEXT NOT NULL,
			subject TEXT NOT NULL,
			date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			sender_ip VARCHAR(64),
			ollama_evaluation LONGTEXT,
			raw_email_id INT
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS raw_emails (
			id INT AUTO_INCREMENT PRIMARY KEY,
			raw_content LONGTEXT NOT NULL,
			parsed_email_id INT,
			FOREIGN KEY (parsed_email_id) REFERENCES parsed_emails(id)
		) CHARACTER SET utf8mb4`,
	},
}

// Store persists raw and parsed emails
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open connection
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates both tables if they don't exist
func (s *Store) Migrate(ctx context.Context) error {
	stmts, ok := schema[s.db.DriverName()]
	if !ok {
		stmts = schema[driverMySQL]
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create email tables: %w", err)
		}
	}
	return nil
}

// Collections reads both tables inside one transaction so the two lists come from the
// same snapshot. Rows are ordered by id, which is insertion order.
func (s *Store) Collections(ctx context.Context) (*models.Collections, error) {
	defer observe("collections", time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // never committed

	out := &models.Collections{
		ParsedEmails: []models.ParsedEmail{},
		RawEmails:    []models.RawEmail{},
	}
	if err := tx.SelectContext(ctx, &out.ParsedEmails, "SELECT "+parsedColumns+" FROM parsed_emails ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list parsed emails: %w", err)
	}
	if err := tx.SelectContext(ctx, &out.RawEmails, "SELECT "+rawColumns+" FROM raw_emails ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list raw emails: %w", err)
	}
	return out, nil
}

// ListParsedEmails returns every parsed email ordered by id
func (s *Store) ListParsedEmails(ctx context.Context) ([]models.ParsedEmail, error) {
	defer observe("list_parsed", time.Now())

	emails := []models.ParsedEmail{}
	if err := s.db.SelectContext(ctx, &emails, "SELECT "+parsedColumns+" FROM parsed_emails ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list parsed emails: %w", err)
	}
	return emails, nil
}

// CreateRawEmail stores the raw payload on its own so it survives a later parsing failure
func (s *Store) CreateRawEmail(ctx context.Context, content string) (int, error) {
	defer observe("create_raw", time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insert(ctx, tx, "INSERT INTO raw_emails (raw_content) VALUES (?)", content)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw email: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit raw email: %w", err)
	}
	return id, nil
}

// CreateParsedEmail stores p and links both sides of the raw/parsed reference
func (s *Store) CreateParsedEmail(ctx context.Context, p *models.ParsedEmail) (int, error) {
	defer observe("create_parsed", time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insert(ctx, tx,
		"INSERT INTO parsed_emails (from_address, to_address, subject, date, sender_ip, ollama_evaluation, raw_email_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.FromAddress, p.ToAddress, p.Subject, p.Date, p.SenderIP, p.OllamaEvaluation, p.RawEmailID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert parsed email: %w", err)
	}

	if p.RawEmailID != nil {
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE raw_emails SET parsed_email_id = ? WHERE id = ?"), id, *p.RawEmailID); err != nil {
			return 0, fmt.Errorf("failed to link raw email %d: %w", *p.RawEmailID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit parsed email: %w", err)
	}
	p.ID = id
	return id, nil
}

// DeleteParsedEmail removes a parsed email and every raw email linked to it, in either
// direction, in one transaction. It returns the number of raw rows removed.
func (s *Store) DeleteParsedEmail(ctx context.Context, id int) (int64, error) {
	defer observe("delete_parsed", time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rawID sql.NullInt64
	err = tx.GetContext(ctx, &rawID, tx.Rebind("SELECT raw_email_id FROM parsed_emails WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up parsed email %d: %w", id, err)
	}

	// raw rows first, they hold the foreign key
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM raw_emails WHERE parsed_email_id = ? OR id = ?"), id, rawID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete raw emails for %d: %w", id, err)
	}
	rawDeleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted raw emails: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM parsed_emails WHERE id = ?"), id); err != nil {
		return 0, fmt.Errorf("failed to delete parsed email %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return rawDeleted, nil
}

// insert runs an INSERT and returns the generated id. Postgres has no LastInsertId, so
// the statement is extended with RETURNING there.
func (s *Store) insert(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int, error) {
	if tx.DriverName() == driverPostgres {
		var id int
		if err := tx.GetContext(ctx, &id, tx.Rebind(query+" RETURNING id"), args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
