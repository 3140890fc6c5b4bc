package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/apache/stanbol-sub040/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
)

// dbFile is the database file name inside the data directory.
const dbFile = "index.db"

// Store is a SQLite-backed Index. It also provides the indexing state
// store through a wrapper type sharing the same connection.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.yard/data/index.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".yard", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	// WAL lets readers proceed while an entity is being committed.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// IndexingStateStore returns an IndexingStateStore backed by this store.
func (s *Store) IndexingStateStore() driven.IndexingStateStore {
	return &indexingStateStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Indexing State Store ====================

// indexingStateStore implements driven.IndexingStateStore.
type indexingStateStore struct {
	store *Store
}

var _ driven.IndexingStateStore = (*indexingStateStore)(nil)

// Save stores or updates the state of a source.
func (s *indexingStateStore) Save(ctx context.Context, state domain.IndexingState) error {
	if state.SourceID == "" {
		return fmt.Errorf("%w: indexing state without source id", domain.ErrInvalidInput)
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO indexing_states (source_id, epoch, revision, last_indexed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			epoch = excluded.epoch,
			revision = excluded.revision,
			last_indexed = excluded.last_indexed
	`, state.SourceID, state.Epoch, state.Revision, state.LastIndexed.UTC())

	if err != nil {
		return fmt.Errorf("saving indexing state: %w", err)
	}
	return nil
}

// Get retrieves the state of a source.
func (s *indexingStateStore) Get(ctx context.Context, sourceID string) (*domain.IndexingState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_id, epoch, revision, last_indexed
		FROM indexing_states WHERE source_id = ?
	`, sourceID)

	var state domain.IndexingState
	var lastIndexed sql.NullTime
	if err := row.Scan(&state.SourceID, &state.Epoch, &state.Revision, &lastIndexed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning indexing state: %w", err)
	}
	if lastIndexed.Valid {
		state.LastIndexed = lastIndexed.Time
	}
	return &state, nil
}

// Delete removes the state of a source.
func (s *indexingStateStore) Delete(ctx context.Context, sourceID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM indexing_states WHERE source_id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting indexing state: %w", err)
	}
	return nil
}
