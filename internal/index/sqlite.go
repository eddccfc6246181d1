// Persistence for the derived index: a local SQLite database (qipu.db) is
// a pure cache over the notes directory (§4.6). Schema and consistency
// protocol follow the teacher's internal/storage/sqlite package, adapted
// from an issue tracker's tables to qipu's note/edge/term-frequency shape.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SchemaVersion is bumped whenever the table shape changes incompatibly;
// a mismatch at open forces a full rebuild (§4.6 consistency protocol step 1).
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	note_type TEXT NOT NULL,
	path TEXT NOT NULL,
	created DATETIME,
	updated DATETIME,
	value INTEGER NOT NULL DEFAULT 50,
	mtime_unix INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	note_id TEXT NOT NULL,
	tag TEXT NOT NULL,
	PRIMARY KEY (note_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

CREATE TABLE IF NOT EXISTS edges (
	from_id TEXT NOT NULL,
	to_id TEXT NOT NULL,
	link_type TEXT NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY (from_id, link_type, to_id)
);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);

CREATE TABLE IF NOT EXISTS unresolved (
	source_id TEXT NOT NULL,
	target_ref TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	id UNINDEXED, title, tags, body
);
`

// DB wraps the qipu.db connection and is the persisted counterpart of
// Index.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("index: creating parent dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("index: opening %s: %w", path, err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: applying schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// NoteStat is the on-disk (path, mtime) pair sampled for the consistency
// protocol (§4.6 step 2).
type NoteStat struct {
	ID    string
	Path  string
	MTime time.Time
}

// NeedsRebuild implements the three-step consistency protocol from §4.6:
// schema mismatch, row-count/mtime/missing-file mismatch against a disk
// sample, or an empty DB with a non-empty notes directory.
func (db *DB) NeedsRebuild(ctx context.Context, diskNotes []NoteStat) (bool, string, error) {
	var storedVersion int
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'schema_version'`).Scan(&storedVersion)
	if err == sql.ErrNoRows {
		if len(diskNotes) == 0 {
			return false, "", nil
		}
		return true, "empty index with non-empty notes directory", nil
	}
	if err != nil {
		return true, "", fmt.Errorf("index: reading schema_version: %w", err)
	}
	if storedVersion != SchemaVersion {
		return true, fmt.Sprintf("schema version %d != %d", storedVersion, SchemaVersion), nil
	}

	var rowCount int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&rowCount); err != nil {
		return true, "", fmt.Errorf("index: counting notes: %w", err)
	}
	if rowCount == 0 && len(diskNotes) > 0 {
		return true, "empty index with non-empty notes directory", nil
	}
	if rowCount != len(diskNotes) {
		return true, fmt.Sprintf("row count %d != disk note count %d", rowCount, len(diskNotes)), nil
	}

	for _, dn := range diskNotes {
		var storedMTime int64
		err := db.conn.QueryRowContext(ctx, `SELECT mtime_unix FROM notes WHERE id = ?`, dn.ID).Scan(&storedMTime)
		if err == sql.ErrNoRows {
			return true, fmt.Sprintf("missing file for %s", dn.ID), nil
		}
		if err != nil {
			return true, "", fmt.Errorf("index: sampling %s: %w", dn.ID, err)
		}
		if storedMTime != dn.MTime.Unix() {
			return true, fmt.Sprintf("mtime mismatch for %s", dn.ID), nil
		}
	}
	return false, "", nil
}

// Rebuild truncates and re-inserts from idx in a single transaction (§4.6).
func (db *DB) Rebuild(ctx context.Context, idx *Index, mtimes map[string]time.Time, bodies map[string]string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: rebuild: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM notes`, `DELETE FROM tags`, `DELETE FROM edges`,
		`DELETE FROM unresolved`, `DELETE FROM notes_fts`, `DELETE FROM index_meta`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index: rebuild: truncate: %w", err)
		}
	}

	ids := make([]string, 0, len(idx.Metadata))
	for id := range idx.Metadata {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := idx.Metadata[id]
		mtime := mtimes[id]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, title, note_type, path, created, updated, value, mtime_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Title, m.Type, m.Path, m.Created, m.Updated, m.Value, mtime.Unix()); err != nil {
			return fmt.Errorf("index: rebuild: insert note %s: %w", id, err)
		}
		for _, t := range m.Tags {
			if _, err := tx.ExecContext(ctx, `INSERT INTO tags (note_id, tag) VALUES (?, ?)`, id, t); err != nil {
				return fmt.Errorf("index: rebuild: insert tag: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO notes_fts (id, title, tags, body) VALUES (?, ?, ?, ?)`,
			id, m.Title, joinTags(m.Tags), bodies[id]); err != nil {
			return fmt.Errorf("index: rebuild: insert fts row: %w", err)
		}
	}

	for _, e := range idx.Edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO edges (from_id, to_id, link_type, source) VALUES (?, ?, ?, ?)`,
			e.From, e.To, e.LinkType, string(e.Source)); err != nil {
			return fmt.Errorf("index: rebuild: insert edge: %w", err)
		}
	}
	for _, u := range idx.Unresolved {
		if _, err := tx.ExecContext(ctx, `INSERT INTO unresolved (source_id, target_ref) VALUES (?, ?)`, u.SourceID, u.TargetRef); err != nil {
			return fmt.Errorf("index: rebuild: insert unresolved: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("index: rebuild: insert meta: %w", err)
	}

	return tx.Commit()
}

// Upsert incrementally updates a single note's row, tags, and FTS entry in
// lockstep within one transaction (§4.6 "Incremental updates").
func (db *DB) Upsert(ctx context.Context, m Metadata, mtime time.Time, body string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: upsert: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, note_type, path, created, updated, value, mtime_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, note_type=excluded.note_type, path=excluded.path,
			created=excluded.created, updated=excluded.updated, value=excluded.value,
			mtime_unix=excluded.mtime_unix`,
		m.ID, m.Title, m.Type, m.Path, m.Created, m.Updated, m.Value, mtime.Unix()); err != nil {
		return fmt.Errorf("index: upsert: note: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE note_id = ?`, m.ID); err != nil {
		return err
	}
	for _, t := range m.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (note_id, tag) VALUES (?, ?)`, m.ID, t); err != nil {
			return fmt.Errorf("index: upsert: tag: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, m.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO notes_fts (id, title, tags, body) VALUES (?, ?, ?, ?)`,
		m.ID, m.Title, joinTags(m.Tags), body); err != nil {
		return fmt.Errorf("index: upsert: fts: %w", err)
	}
	return tx.Commit()
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

