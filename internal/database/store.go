// Package database provides storage backends for the threat intel portal.
package database

import (
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Source operations
	GetEnabledSources(kind model.SourceKind) ([]model.Source, error)
	GetSourceByName(name string) (*model.Source, error)
	CreateSource(src *model.Source) (int64, error)
	// GetOrCreateSource finds a source by name, or creates it.
	// The bool result reports whether the source was created.
	GetOrCreateSource(src *model.Source) (int64, bool, error)
	// UpdateSourceCursor persists a source's incremental-fetch cursor.
	UpdateSourceCursor(sourceID int64, etag string, lastModified *time.Time) error

	// Item operations
	HasItemHash(hash []byte) (bool, error)
	// InsertItemWithIOCs atomically inserts an item plus its IOC rows.
	// A fingerprint collision (including a race with a concurrent
	// poller) is resolved by the hash uniqueness constraint: the insert
	// becomes a no-op and inserted is false.
	InsertItemWithIOCs(item *model.Item, iocs []model.CandidateIOC) (id int64, inserted bool, err error)
	GetItem(itemID int64) (*model.ItemDetail, error)
	// ListItems returns recent items joined with their source name,
	// ordered by published date descending. q is an optional substring
	// filter on title and text.
	ListItems(q string, limit int) ([]model.ItemSummary, error)
}
