// Package console keeps the rendered projection of the raw and parsed email collections and
// the upload/delete workflow that mutates them.
package console

import (
	"sync"

	"mailtriage/internal/models"
)

// Level is the severity of a notice
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Notice is the single status message shown above the tables
type Notice struct {
	Level Level
	Text  string
}

// CellKind says how a cell is rendered
type CellKind int

const (
	// CellText is plain text
	CellText CellKind = iota
	// CellLink points at the anchor of the counterpart row
	CellLink
	// CellPlaceholder stands in for an absent value
	CellPlaceholder
	// CellDelete is the delete affordance of a parsed row
	CellDelete
)

// Cell is one rendered table cell
type Cell struct {
	Kind   CellKind
	Text   string
	Target string // anchor id, CellLink only
	ID     int    // row id, CellDelete only
}

// Row is one rendered table row addressable by its anchor
type Row struct {
	Anchor string
	Cells  []Cell
}

// DeleteConfirmation is the state of the delete prompt
type DeleteConfirmation struct {
	Open      bool
	PendingID *int
}

// Snapshot is a consistent copy of the view for rendering
type Snapshot struct {
	ParsedRows   []Row
	RawRows      []Row
	Notice       *Notice
	Confirmation DeleteConfirmation
	Collections  *models.Collections
	Loaded       bool
}

// View is the shared display state. Only the loader replaces the tables; the coordinator
// owns the notice and the confirmation state. Row slices are replaced wholesale, never
// mutated, so snapshots can share them.
type View struct {
	mu           sync.RWMutex
	parsedRows   []Row
	rawRows      []Row
	collections  *models.Collections
	loaded       bool
	notice       *Notice
	confirmation DeleteConfirmation
}

// NewView returns an empty view
func NewView() *View {
	return &View{}
}

// Snapshot returns the current state
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := Snapshot{
		ParsedRows:   v.parsedRows,
		RawRows:      v.rawRows,
		Collections:  v.collections,
		Loaded:       v.loaded,
		Confirmation: v.confirmation,
	}
	if v.notice != nil {
		n := *v.notice
		s.Notice = &n
	}
	if v.confirmation.PendingID != nil {
		id := *v.confirmation.PendingID
		s.Confirmation.PendingID = &id
	}
	return s
}

// Notice returns the notice currently shown, if any
func (v *View) Notice() *Notice {
	return v.Snapshot().Notice
}

// SetNotice replaces the notice
func (v *View) SetNotice(level Level, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = &Notice{Level: level, Text: text}
}

// ClearNotice empties the notice area
func (v *View) ClearNotice() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = nil
}

// replaceTables swaps both tables at once if accept still holds under the lock. A fetch
// error left by an earlier reload no longer describes the tables and is dropped.
func (v *View) replaceTables(c *models.Collections, parsed, raw []Row, accept func() bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !accept() {
		return false
	}
	v.collections = c
	v.parsedRows = parsed
	v.rawRows = raw
	v.loaded = true
	if v.notice != nil && *v.notice == (Notice{Level: LevelDanger, Text: FetchErrorText}) {
		v.notice = nil
	}
	return true
}

func (v *View) openConfirmation(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmation = DeleteConfirmation{Open: true, PendingID: &id}
}

// takePending returns the pending id and closes the prompt
func (v *View) takePending() (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pending := v.confirmation.PendingID
	v.confirmation = DeleteConfirmation{}
	if pending == nil {
		return 0, false
	}
	return *pending, true
}

func (v *View) closeConfirmation() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmation = DeleteConfirmation{}
}
