// Package database provides SQLite storage for the threat intel portal.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string { return "SQLite" }

// SupportsHighConcurrency returns false: SQLite serializes writers.
func (db *DB) SupportsHighConcurrency() bool { return false }

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		auth_secret TEXT NOT NULL DEFAULT '',
		poll_interval_seconds INTEGER NOT NULL DEFAULT 900,
		last_etag TEXT NOT NULL DEFAULT '',
		last_modified DATETIME
	);
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES sources(id),
		canonical_url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '{}',
		text TEXT NOT NULL DEFAULT '',
		hash_sha256 BLOB NOT NULL UNIQUE,
		summary_short TEXT NOT NULL DEFAULT '',
		lang TEXT NOT NULL DEFAULT 'en'
	);
	CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at DESC);
	CREATE TABLE IF NOT EXISTS iocs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_iocs_item ON iocs(item_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Source Methods ---

const sourceCols = "id, name, kind, endpoint, enabled, auth_secret, poll_interval_seconds, last_etag, last_modified"

func scanSource(row interface{ Scan(...any) error }) (model.Source, error) {
	var s model.Source
	var lastModified sql.NullTime
	err := row.Scan(&s.ID, &s.Name, &s.Kind, &s.Endpoint, &s.Enabled, &s.AuthSecret,
		&s.PollIntervalSeconds, &s.LastETag, &lastModified)
	if err != nil {
		return s, err
	}
	if lastModified.Valid {
		t := lastModified.Time
		s.LastModified = &t
	}
	return s, nil
}

// GetEnabledSources returns all enabled sources of the given kind.
func (db *DB) GetEnabledSources(kind model.SourceKind) ([]model.Source, error) {
	rows, err := db.conn.Query(
		"SELECT "+sourceCols+" FROM sources WHERE kind = ? AND enabled = 1 ORDER BY name", kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sources []model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// GetSourceByName returns the source with the given name, or nil.
func (db *DB) GetSourceByName(name string) (*model.Source, error) {
	row := db.conn.QueryRow("SELECT "+sourceCols+" FROM sources WHERE name = ?", name)
	s, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSource adds a new source. Returns the ID.
func (db *DB) CreateSource(src *model.Source) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (name, kind, endpoint, enabled, auth_secret, poll_interval_seconds, last_etag, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, src.Kind, src.Endpoint, src.Enabled, src.AuthSecret,
		src.PollIntervalSeconds, src.LastETag, nullTime(src.LastModified))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOrCreateSource finds a source by name, or creates it.
func (db *DB) GetOrCreateSource(src *model.Source) (int64, bool, error) {
	existing, err := db.GetSourceByName(src.Name)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}
	id, err := db.CreateSource(src)
	return id, err == nil, err
}

// UpdateSourceCursor persists a source's incremental-fetch cursor.
func (db *DB) UpdateSourceCursor(sourceID int64, etag string, lastModified *time.Time) error {
	_, err := db.conn.Exec("UPDATE sources SET last_etag = ?, last_modified = ? WHERE id = ?",
		etag, nullTime(lastModified), sourceID)
	return err
}

// --- Item Methods ---

// HasItemHash reports whether an item with this fingerprint exists.
func (db *DB) HasItemHash(hash []byte) (bool, error) {
	var id int64
	err := db.conn.QueryRow("SELECT id FROM items WHERE hash_sha256 = ? LIMIT 1", hash).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertItemWithIOCs atomically inserts an item plus its IOC rows.
// A hash conflict makes the whole insert a silent no-op.
func (db *DB) InsertItemWithIOCs(item *model.Item, iocs []model.CandidateIOC) (int64, bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO items (source_id, canonical_url, title, published_at, fetched_at, author, raw, text, hash_sha256, summary_short, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash_sha256) DO NOTHING`,
		item.SourceID, item.CanonicalURL, item.Title, nullTime(item.PublishedAt),
		item.FetchedAt, item.Author, toJSON(item.Raw), item.Text,
		item.HashSHA256, item.SummaryShort, item.Lang)
	if err != nil {
		return 0, false, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Lost a race on the fingerprint: same outcome as a duplicate.
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	for _, ioc := range iocs {
		if _, err := tx.Exec(
			"INSERT INTO iocs (item_id, type, value, context) VALUES (?, ?, ?, ?)",
			id, ioc.Type, ioc.Value, toJSON(ioc.Context)); err != nil {
			return 0, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetItem returns an item with its source name and IOC rows.
func (db *DB) GetItem(itemID int64) (*model.ItemDetail, error) {
	row := db.conn.QueryRow(`
		SELECT i.id, i.source_id, i.canonical_url, i.title, i.published_at, i.fetched_at,
		       i.author, i.raw, i.text, i.hash_sha256, i.summary_short, i.lang, s.name
		FROM items i JOIN sources s ON s.id = i.source_id
		WHERE i.id = ?`, itemID)
	var d model.ItemDetail
	var publishedAt sql.NullTime
	var raw string
	err := row.Scan(&d.ID, &d.SourceID, &d.CanonicalURL, &d.Title, &publishedAt, &d.FetchedAt,
		&d.Author, &raw, &d.Text, &d.HashSHA256, &d.SummaryShort, &d.Lang, &d.SourceName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		d.PublishedAt = &t
	}
	d.Raw = fromJSON(raw)

	rows, err := db.conn.Query("SELECT id, item_id, type, value, context FROM iocs WHERE item_id = ? ORDER BY id", itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ioc model.IOC
		var ctx string
		if err := rows.Scan(&ioc.ID, &ioc.ItemID, &ioc.Type, &ioc.Value, &ctx); err != nil {
			return nil, err
		}
		ioc.Context = fromJSON(ctx)
		d.IOCs = append(d.IOCs, ioc)
	}
	return &d, rows.Err()
}

// ListItems returns recent items joined with their source name.
func (db *DB) ListItems(q string, limit int) ([]model.ItemSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT i.id, i.title, i.canonical_url, i.published_at, i.summary_short, s.name
		FROM items i JOIN sources s ON s.id = i.source_id`
	args := []any{}
	if q != "" {
		query += " WHERE i.title LIKE ? OR i.text LIKE ?"
		pat := "%" + q + "%"
		args = append(args, pat, pat)
	}
	query += " ORDER BY i.published_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.ItemSummary
	for rows.Next() {
		var it model.ItemSummary
		var publishedAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.Title, &it.CanonicalURL, &publishedAt, &it.SummaryShort, &it.SourceName); err != nil {
			return nil, err
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			it.PublishedAt = &t
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
