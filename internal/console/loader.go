package console

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"mailtriage/internal/metrics"
	"mailtriage/internal/models"

	"github.com/rs/zerolog"
)

// FetchErrorText is the notice shown when the collections cannot be loaded
const FetchErrorText = "Error fetching data. See logs for details."

// ErrStaleReload is returned when a newer reload started while this one was fetching
var ErrStaleReload = errors.New("reload superseded by a newer one")

// Fetcher reads both collections from the backend
type Fetcher interface {
	FetchCollections(ctx context.Context) (*models.Collections, error)
}

// Loader replaces both tables with the backend's current state
type Loader struct {
	fetcher    Fetcher
	view       *View
	location   *time.Location
	logger     zerolog.Logger
	generation atomic.Uint64
}

// NewLoader creates a loader rendering dates in loc
func NewLoader(fetcher Fetcher, view *View, loc *time.Location, logger zerolog.Logger) *Loader {
	if loc == nil {
		loc = time.UTC
	}
	return &Loader{
		fetcher:  fetcher,
		view:     view,
		location: loc,
		logger:   logger,
	}
}

// Reload fetches both collections and swaps both tables. The tables are only touched after
// a successful fetch; on failure the previous rows stay and a danger notice is shown.
func (l *Loader) Reload(ctx context.Context) error {
	gen := l.generation.Add(1)
	current := func() bool { return l.generation.Load() == gen }

	collections, err := l.fetcher.FetchCollections(ctx)
	if err != nil {
		if !current() {
			l.logger.Debug().Err(err).Uint64("generation", gen).Msg("Discarding failed stale reload")
			metrics.RecordReload("stale")
			return ErrStaleReload
		}
		l.logger.Error().Err(err).Msg("Error fetching data")
		l.view.SetNotice(LevelDanger, FetchErrorText)
		metrics.RecordReload("error")
		return err
	}

	parsed := BuildParsedRows(collections.ParsedEmails, l.location)
	raw := BuildRawRows(collections.RawEmails)

	if !l.view.replaceTables(collections, parsed, raw, current) {
		l.logger.Debug().Uint64("generation", gen).Msg("Discarding stale reload")
		metrics.RecordReload("stale")
		return ErrStaleReload
	}

	l.logger.Debug().
		Int("parsed_emails", len(parsed)).
		Int("raw_emails", len(raw)).
		Msg("Tables reloaded")
	metrics.RecordReload("ok")
	return nil
}
