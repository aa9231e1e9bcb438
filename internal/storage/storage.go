// Package storage persists the autoscan directory list across restarts
// behind a narrow interface the rest of the program depends on abstractly.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/wanman/gerber/internal/autoscan"
)

// Storage is the persistence interface the rest of gerber depends on. Only
// the autoscan directory list is in scope for this subsystem; the content
// database itself (objects, metadata) lives elsewhere.
type Storage interface {
	// AutoscanDirectories returns every persistent autoscan directory,
	// loaded once at startup. The watcher itself never touches Storage
	// directly beyond this initial load.
	AutoscanDirectories(ctx context.Context) ([]*autoscan.Directory, error)
	// SaveAutoscanDirectory inserts or updates one autoscan directory.
	SaveAutoscanDirectory(ctx context.Context, dir *autoscan.Directory) error
	// DeleteAutoscanDirectory removes an autoscan directory by ID.
	DeleteAutoscanDirectory(ctx context.Context, id uuid.UUID) error
	// Close releases the underlying database handle.
	Close() error
}

// SQLiteStorage is the bundled Storage implementation, backed by the
// pure-Go modernc.org/sqlite driver, which avoids a cgo dependency and
// keeps the resulting binary statically linkable.
type SQLiteStorage struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open storage at %s: %w", path, err)
	}
	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS autoscan_directories (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	recursive   INTEGER NOT NULL,
	scan_level  INTEGER NOT NULL,
	persistent  INTEGER NOT NULL,
	last_modified INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("unable to migrate storage schema: %w", err)
	}
	return nil
}

// AutoscanDirectories implements Storage.AutoscanDirectories. Only rows with
// persistent == true are returned: rows saved with Persistent false are not
// reloaded after a restart.
func (s *SQLiteStorage) AutoscanDirectories(ctx context.Context) ([]*autoscan.Directory, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, recursive, scan_level, persistent, last_modified
FROM autoscan_directories
WHERE persistent = 1
`)
	if err != nil {
		return nil, fmt.Errorf("unable to query autoscan directories: %w", err)
	}
	defer rows.Close()

	var result []*autoscan.Directory
	for rows.Next() {
		var (
			idText       string
			path         string
			recursive    int
			scanLevel    int
			persistent   int
			lastModified int64
		)
		if err := rows.Scan(&idText, &path, &recursive, &scanLevel, &persistent, &lastModified); err != nil {
			return nil, fmt.Errorf("unable to scan autoscan directory row: %w", err)
		}
		id, err := uuid.Parse(idText)
		if err != nil {
			return nil, fmt.Errorf("invalid autoscan directory id %q: %w", idText, err)
		}

		dir := &autoscan.Directory{
			ID:         id,
			Path:       path,
			Recursive:  recursive != 0,
			ScanLevel:  autoscan.ScanLevel(scanLevel),
			Persistent: persistent != 0,
		}
		dir.Touch(time.Unix(lastModified, 0))
		result = append(result, dir)
	}
	return result, rows.Err()
}

// SaveAutoscanDirectory implements Storage.SaveAutoscanDirectory.
func (s *SQLiteStorage) SaveAutoscanDirectory(ctx context.Context, dir *autoscan.Directory) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO autoscan_directories (id, path, recursive, scan_level, persistent, last_modified)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	path = excluded.path,
	recursive = excluded.recursive,
	scan_level = excluded.scan_level,
	persistent = excluded.persistent,
	last_modified = excluded.last_modified
`, dir.ID.String(), dir.Path, boolToInt(dir.Recursive), int(dir.ScanLevel), boolToInt(dir.Persistent), dir.LastModified().Unix())
	if err != nil {
		return fmt.Errorf("unable to save autoscan directory %s: %w", dir.ID, err)
	}
	return nil
}

// DeleteAutoscanDirectory implements Storage.DeleteAutoscanDirectory.
func (s *SQLiteStorage) DeleteAutoscanDirectory(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM autoscan_directories WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("unable to delete autoscan directory %s: %w", id, err)
	}
	return nil
}

// Close implements Storage.Close.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
