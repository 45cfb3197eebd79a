package console

import (
	"strconv"
	"time"

	"mailtriage/internal/models"
)

const (
	// Placeholder is shown for absent references and values
	Placeholder = "N/A"
	// TruncateLimit is the number of characters of raw content shown in the table
	TruncateLimit = 100

	dateLayout = "2006-01-02 15:04:05 MST"
)

// ParsedHeaders and RawHeaders are the column titles of the two tables
var (
	ParsedHeaders = []string{"ID", "From", "To", "Subject", "Date", "Sender IP", "Ollama Evaluation", "Raw Email ID", "Actions"}
	RawHeaders    = []string{"ID", "Raw Content", "Parsed Email ID", "Actions"}
)

// ParsedAnchor is the anchor id of a parsed email row
func ParsedAnchor(id int) string {
	return "parsed-email-" + strconv.Itoa(id)
}

// RawAnchor is the anchor id of a raw email row
func RawAnchor(id int) string {
	return "raw-email-" + strconv.Itoa(id)
}

// Truncate keeps the first TruncateLimit characters and marks the cut with "..."
func Truncate(s string) string {
	r := []rune(s)
	if len(r) > TruncateLimit {
		r = r[:TruncateLimit]
	}
	return string(r) + "..."
}

// BuildParsedRows renders parsed emails in the order given
func BuildParsedRows(emails []models.ParsedEmail, loc *time.Location) []Row {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([]Row, 0, len(emails))
	for _, e := range emails {
		rows = append(rows, Row{
			Anchor: ParsedAnchor(e.ID),
			Cells: []Cell{
				text(strconv.Itoa(e.ID)),
				text(e.FromAddress),
				text(e.ToAddress),
				text(e.Subject),
				dateCell(e.Date, loc),
				optional(e.SenderIP),
				optional(e.OllamaEvaluation),
				reference(e.RawEmailID, RawAnchor),
				{Kind: CellDelete, Text: "Delete", ID: e.ID},
			},
		})
	}
	return rows
}

// BuildRawRows renders raw emails in the order given. Raw emails are display-only.
func BuildRawRows(emails []models.RawEmail) []Row {
	rows := make([]Row, 0, len(emails))
	for _, e := range emails {
		rows = append(rows, Row{
			Anchor: RawAnchor(e.ID),
			Cells: []Cell{
				text(strconv.Itoa(e.ID)),
				text(Truncate(e.RawContent)),
				reference(e.ParsedEmailID, ParsedAnchor),
				placeholder(),
			},
		})
	}
	return rows
}

func text(s string) Cell {
	return Cell{Kind: CellText, Text: s}
}

func placeholder() Cell {
	return Cell{Kind: CellPlaceholder, Text: Placeholder}
}

func optional(s *string) Cell {
	if s == nil || *s == "" {
		return placeholder()
	}
	return text(*s)
}

func dateCell(t models.Timestamp, loc *time.Location) Cell {
	if t.IsZero() {
		return placeholder()
	}
	return text(t.In(loc).Format(dateLayout))
}

// reference links to the counterpart row. A missing id, or the zero id no row can carry,
// renders the placeholder.
func reference(id *int, anchor func(int) string) Cell {
	if id == nil || *id == 0 {
		return placeholder()
	}
	return Cell{Kind: CellLink, Text: strconv.Itoa(*id), Target: anchor(*id)}
}
