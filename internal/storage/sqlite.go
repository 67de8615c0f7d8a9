package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding collected training conversations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ragchat.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Conversations ---

func (s *Store) SaveConversation(c Conversation) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, created_at, user_message, assistant_response, user_id, model_version, trained)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CreatedAt.UTC().Format(time.RFC3339), c.UserMessage, c.Assistant,
		c.UserID, c.ModelVersion, c.Trained,
	)
	return err
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, user_message, assistant_response, user_id, model_version, trained
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &createdAt, &c.UserMessage, &c.Assistant, &c.UserID, &c.ModelVersion, &c.Trained)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// CountConversations returns the total number of collected conversations.
func (s *Store) CountConversations() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&n)
	return n, err
}

// CountUntrained returns the number of conversations not yet used in a
// fine-tuning pass.
func (s *Store) CountUntrained() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM conversations WHERE trained = 0").Scan(&n)
	return n, err
}

// MarkAllTrained flags every collected conversation as consumed by training
// and returns how many rows changed.
func (s *Store) MarkAllTrained() (int, error) {
	res, err := s.db.Exec("UPDATE conversations SET trained = 1 WHERE trained = 0")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RecentConversations returns the newest conversations first.
func (s *Store) RecentConversations(limit int) ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, user_message, assistant_response, user_id, model_version, trained
		FROM conversations ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt string
		if err := rows.Scan(&c.ID, &createdAt, &c.UserMessage, &c.Assistant, &c.UserID, &c.ModelVersion, &c.Trained); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}

// ClearConversations deletes all collected conversations. When backup is
// true the rows are copied to the backup table first. Returns the number of
// cleared conversations.
func (s *Store) ClearConversations(backup bool) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	if backup {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.Exec(`
			INSERT INTO conversations_backup (id, created_at, user_message, assistant_response, user_id, model_version, trained, backed_up_at)
			SELECT id, created_at, user_message, assistant_response, user_id, model_version, trained, ?
			FROM conversations`, now,
		); err != nil {
			return 0, fmt.Errorf("backing up conversations: %w", err)
		}
	}

	res, err := tx.Exec("DELETE FROM conversations")
	if err != nil {
		return 0, fmt.Errorf("clearing conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing clear: %w", err)
	}
	return int(n), nil
}

// CountBackups returns the number of rows in the backup table.
func (s *Store) CountBackups() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM conversations_backup").Scan(&n)
	return n, err
}
