// Package projectstore persists projects in a SQLite database. Ownership
// is enforced at the query layer: operations on another user's project
// return schema.ErrProjectForbidden, and unknown ids return
// schema.ErrProjectNotFound.
package projectstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

// CurrentSchemaVersion is the latest schema version. Bump when adding
// migrations.
const CurrentSchemaVersion = 1

// Store is a SQLite-backed project repository.
type Store struct {
	db  *sql.DB
	log pslog.Logger
}

// Open initializes the database at dataDir/projects.db and returns the store.
func Open(dataDir string, logger pslog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	_ = os.Chmod(dataDir, 0o700)

	dbPath := filepath.Join(dataDir, "projects.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0o600)
	if logger != nil {
		logger = logger.With("db", dbPath)
		logger.Debug("project store open ok")
	}
	return &Store{db: db, log: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}
	if version < 1 {
		schemaSQL := `
		CREATE TABLE IF NOT EXISTS projects (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  owner_id   TEXT NOT NULL,
		  name       TEXT NOT NULL,
		  html       TEXT NOT NULL DEFAULT '',
		  css        TEXT NOT NULL DEFAULT '',
		  js         TEXT NOT NULL DEFAULT '',
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_owner_updated
		ON projects(owner_id, updated_at DESC);
		`
		if _, err := db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}
	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Read returns the project with the given id if the user owns it.
func (s *Store) Read(ctx context.Context, userID schema.UserID, id schema.ProjectID) (schema.Project, error) {
	const query = `
		SELECT id, owner_id, name, html, css, js, created_at, updated_at
		FROM projects WHERE id = ?
	`
	project, err := scanProject(s.db.QueryRowContext(ctx, query, int64(id)))
	if err == sql.ErrNoRows {
		return schema.Project{}, schema.ErrProjectNotFound
	}
	if err != nil {
		return schema.Project{}, err
	}
	if project.OwnerID != userID {
		return schema.Project{}, schema.ErrProjectForbidden
	}
	return project, nil
}

// Create inserts a new project owned by the user.
func (s *Store) Create(ctx context.Context, userID schema.UserID, name schema.ProjectName, buffers schema.BufferSnapshot) (schema.Project, error) {
	now := time.Now().UTC()
	const query = `
		INSERT INTO projects (owner_id, name, html, css, js, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(userID), string(name), buffers.HTML, buffers.CSS, buffers.JS,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return schema.Project{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return schema.Project{}, err
	}
	if s.log != nil {
		s.log.With("user", userID).Info("project created", "project", id, "name", name)
	}
	return schema.Project{
		ID:        schema.ProjectID(id),
		OwnerID:   userID,
		Name:      name,
		HTML:      buffers.HTML,
		CSS:       buffers.CSS,
		JS:        buffers.JS,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update applies the non-nil fields of the update to an owned project and
// returns the updated row.
func (s *Store) Update(ctx context.Context, userID schema.UserID, id schema.ProjectID, update schema.ProjectUpdate) (schema.Project, error) {
	current, err := s.Read(ctx, userID, id)
	if err != nil {
		return schema.Project{}, err
	}
	if update.Name != nil {
		current.Name = *update.Name
	}
	if update.HTML != nil {
		current.HTML = *update.HTML
	}
	if update.CSS != nil {
		current.CSS = *update.CSS
	}
	if update.JS != nil {
		current.JS = *update.JS
	}
	current.UpdatedAt = time.Now().UTC()
	const query = `
		UPDATE projects SET name = ?, html = ?, css = ?, js = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(current.Name), current.HTML, current.CSS, current.JS,
		current.UpdatedAt.UnixMilli(), int64(id), string(userID),
	)
	if err != nil {
		return schema.Project{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return schema.Project{}, err
	}
	if affected == 0 {
		return schema.Project{}, schema.ErrProjectNotFound
	}
	if s.log != nil {
		s.log.With("user", userID).Debug("project updated", "project", id)
	}
	return current, nil
}

// Delete removes an owned project.
func (s *Store) Delete(ctx context.Context, userID schema.UserID, id schema.ProjectID) error {
	// Read first so forbidden and not-found are distinguished.
	if _, err := s.Read(ctx, userID, id); err != nil {
		return err
	}
	const query = `DELETE FROM projects WHERE id = ? AND owner_id = ?`
	if _, err := s.db.ExecContext(ctx, query, int64(id), string(userID)); err != nil {
		return err
	}
	if s.log != nil {
		s.log.With("user", userID).Info("project deleted", "project", id)
	}
	return nil
}

// List returns summaries of the user's projects, most recently updated first.
func (s *Store) List(ctx context.Context, userID schema.UserID) ([]schema.ProjectSummary, error) {
	const query = `
		SELECT id, name, created_at, updated_at
		FROM projects WHERE owner_id = ?
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := make([]schema.ProjectSummary, 0, 8)
	for rows.Next() {
		var (
			id        int64
			name      string
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&id, &name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, schema.ProjectSummary{
			ID:        schema.ProjectID(id),
			Name:      schema.ProjectName(name),
			CreatedAt: time.UnixMilli(createdAt).UTC(),
			UpdatedAt: time.UnixMilli(updatedAt).UTC(),
		})
	}
	return summaries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (schema.Project, error) {
	var (
		id        int64
		ownerID   string
		name      string
		html      string
		css       string
		js        string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&id, &ownerID, &name, &html, &css, &js, &createdAt, &updatedAt); err != nil {
		return schema.Project{}, err
	}
	return schema.Project{
		ID:        schema.ProjectID(id),
		OwnerID:   schema.UserID(ownerID),
		Name:      schema.ProjectName(name),
		HTML:      html,
		CSS:       css,
		JS:        js,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}
