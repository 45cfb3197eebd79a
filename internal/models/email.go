package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParsedEmail represents structured fields and the evaluation verdict derived from a raw email
// @Description Parsed email record
type ParsedEmail struct {
	ID               int       `db:"id" json:"id" example:"1"`
	FromAddress      string    `db:"from_address" json:"from_address" example:"alice@example.com"`
	ToAddress        string    `db:"to_address" json:"to_address" example:"bob@example.com"`
	Subject          string    `db:"subject" json:"subject" example:"Invoice overdue"`
	Date             Timestamp `db:"date" json:"date" swaggertype:"string" example:"2024-05-01T10:00:00Z"`
	SenderIP         *string   `db:"sender_ip" json:"sender_ip" example:"203.0.113.7"`
	OllamaEvaluation *string   `db:"ollama_evaluation" json:"ollama_evaluation"` // JSON-encoded analysis result
	RawEmailID       *int      `db:"raw_email_id" json:"raw_email_id" example:"1"`
}

// RawEmail represents the unmodified ingested email payload
// @Description Raw email record
type RawEmail struct {
	ID            int    `db:"id" json:"id" example:"1"`
	RawContent    string `db:"raw_content" json:"raw_content"`
	ParsedEmailID *int   `db:"parsed_email_id" json:"parsed_email_id" example:"1"`
}

// Collections is the full state of both tables as served by the list endpoint
// @Description Both email collections for visualization
type Collections struct {
	ParsedEmails []ParsedEmail `json:"parsed_emails"`
	RawEmails    []RawEmail    `json:"raw_emails"`
}

// timestampLayouts lists the forms the backend is known to emit, most specific first.
// Zone-less values are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp is a time.Time that tolerates ISO-8601 values without a zone offset
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses s using the accepted layouts
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Scan implements sql.Scanner
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Timestamp{}
		return nil
	case time.Time:
		*t = Timestamp{Time: v}
		return nil
	case []byte:
		parsed, err := ParseTimestamp(string(v))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case string:
		parsed, err := ParseTimestamp(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

// Value implements driver.Valuer
func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC(), nil
}
