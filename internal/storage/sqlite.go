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

// Store wraps a SQLite database holding help requests and knowledge entries.
// Timestamps are stored as RFC 3339 UTC strings, so lexicographic comparison
// in SQL matches chronological order.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "switchboard.db")
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

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// --- Help requests ---

const helpRequestColumns = `id, question, customer_name, customer_phone, customer_email,
	status, created_at, timeout_at, resolved_at, supervisor_response, agent_session_id`

// InsertHelpRequest persists a fully-populated help request.
func (s *Store) InsertHelpRequest(r HelpRequest) error {
	var resolvedAt any
	if r.ResolvedAt != nil {
		resolvedAt = formatTime(*r.ResolvedAt)
	}
	_, err := s.db.Exec(`
		INSERT INTO help_requests (`+helpRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Question, r.CustomerInfo.Name, r.CustomerInfo.Phone, r.CustomerInfo.Email,
		r.Status, formatTime(r.CreatedAt), formatTime(r.TimeoutAt), resolvedAt,
		r.SupervisorResponse, r.AgentSessionID,
	)
	return err
}

func scanHelpRequest(row interface{ Scan(...any) error }) (HelpRequest, error) {
	var r HelpRequest
	var createdAt, timeoutAt string
	var resolvedAt sql.NullString
	err := row.Scan(
		&r.ID, &r.Question, &r.CustomerInfo.Name, &r.CustomerInfo.Phone, &r.CustomerInfo.Email,
		&r.Status, &createdAt, &timeoutAt, &resolvedAt, &r.SupervisorResponse, &r.AgentSessionID,
	)
	if err != nil {
		return HelpRequest{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return HelpRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.TimeoutAt, err = parseTime(timeoutAt); err != nil {
		return HelpRequest{}, fmt.Errorf("parsing timeout_at: %w", err)
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return HelpRequest{}, fmt.Errorf("parsing resolved_at: %w", err)
		}
		r.ResolvedAt = &t
	}
	return r, nil
}

// GetHelpRequest returns the help request with the given id, or ErrNotFound.
func (s *Store) GetHelpRequest(id string) (HelpRequest, error) {
	row := s.db.QueryRow(`SELECT `+helpRequestColumns+` FROM help_requests WHERE id = ?`, id)
	r, err := scanHelpRequest(row)
	if err == sql.ErrNoRows {
		return HelpRequest{}, ErrNotFound
	}
	if err != nil {
		return HelpRequest{}, err
	}
	return r, nil
}

func (s *Store) queryHelpRequests(query string, args ...any) ([]HelpRequest, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HelpRequest
	for rows.Next() {
		r, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// PendingHelpRequests returns all PENDING requests, oldest first, so
// supervisors see the longest-waiting customer at the top.
func (s *Store) PendingHelpRequests() ([]HelpRequest, error) {
	return s.queryHelpRequests(`
		SELECT ` + helpRequestColumns + ` FROM help_requests
		WHERE status = 'PENDING'
		ORDER BY created_at ASC, id ASC`)
}

// AllHelpRequests returns every request, newest first.
func (s *Store) AllHelpRequests() ([]HelpRequest, error) {
	return s.queryHelpRequests(`
		SELECT ` + helpRequestColumns + ` FROM help_requests
		ORDER BY created_at DESC, id DESC`)
}

// ExpiredHelpRequests returns PENDING requests whose deadline is at or before
// now, oldest deadline first.
func (s *Store) ExpiredHelpRequests(now time.Time) ([]HelpRequest, error) {
	return s.queryHelpRequests(`
		SELECT `+helpRequestColumns+` FROM help_requests
		WHERE status = 'PENDING' AND timeout_at <= ?
		ORDER BY timeout_at ASC, id ASC`, formatTime(now))
}

// MarkHelpRequestResolved transitions a PENDING request to RESOLVED, storing
// the supervisor's answer. The WHERE clause guards the transition: if the
// sweeper (or another supervisor) got there first, zero rows are updated and
// the caller sees ErrInvalidTransition rather than a lost write.
func (s *Store) MarkHelpRequestResolved(id, supervisorResponse string, resolvedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE help_requests
		SET status = 'RESOLVED', supervisor_response = ?, resolved_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		supervisorResponse, formatTime(resolvedAt), id,
	)
	if err != nil {
		return err
	}
	return s.checkTransition(res, id)
}

// MarkHelpRequestUnresolved transitions a PENDING request to UNRESOLVED.
// Same guarded-update contract as MarkHelpRequestResolved.
func (s *Store) MarkHelpRequestUnresolved(id string, resolvedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE help_requests
		SET status = 'UNRESOLVED', resolved_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		formatTime(resolvedAt), id,
	)
	if err != nil {
		return err
	}
	return s.checkTransition(res, id)
}

// checkTransition distinguishes "no such request" from "request already left
// PENDING" after a guarded update touched zero rows.
func (s *Store) checkTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM help_requests WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// --- Knowledge entries ---

const knowledgeColumns = `id, question_key, question_text, answer_text, created_at,
	source_help_request_id, confidence`

// InsertKnowledgeEntry persists a fully-populated knowledge entry.
func (s *Store) InsertKnowledgeEntry(e KnowledgeEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO knowledge_entries (`+knowledgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.QuestionKey, e.QuestionText, e.AnswerText,
		formatTime(e.CreatedAt), e.SourceHelpRequestID, e.Confidence,
	)
	return err
}

func scanKnowledgeEntry(row interface{ Scan(...any) error }) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	var createdAt string
	err := row.Scan(
		&e.ID, &e.QuestionKey, &e.QuestionText, &e.AnswerText,
		&createdAt, &e.SourceHelpRequestID, &e.Confidence,
	)
	if err != nil {
		return KnowledgeEntry{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return KnowledgeEntry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return e, nil
}

// GetKnowledgeEntry returns the entry with the given id, or ErrNotFound.
func (s *Store) GetKnowledgeEntry(id string) (KnowledgeEntry, error) {
	row := s.db.QueryRow(`SELECT `+knowledgeColumns+` FROM knowledge_entries WHERE id = ?`, id)
	e, err := scanKnowledgeEntry(row)
	if err == sql.ErrNoRows {
		return KnowledgeEntry{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeEntry{}, err
	}
	return e, nil
}

// FindKnowledgeEntryByKey returns the entry whose question_key equals key
// exactly. Duplicate keys are broken deterministically: earliest created_at,
// then lowest id. Returns ErrNotFound when no entry matches.
func (s *Store) FindKnowledgeEntryByKey(key string) (KnowledgeEntry, error) {
	row := s.db.QueryRow(`
		SELECT `+knowledgeColumns+` FROM knowledge_entries
		WHERE question_key = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, key)
	e, err := scanKnowledgeEntry(row)
	if err == sql.ErrNoRows {
		return KnowledgeEntry{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeEntry{}, err
	}
	return e, nil
}

// AllKnowledgeEntries returns every entry, newest first. This is also the
// iteration order the fuzzy matcher scans in.
func (s *Store) AllKnowledgeEntries() ([]KnowledgeEntry, error) {
	rows, err := s.db.Query(`
		SELECT ` + knowledgeColumns + ` FROM knowledge_entries
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledgeEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// DeleteKnowledgeEntry removes an entry. Deleting an unknown id returns
// ErrNotFound.
func (s *Store) DeleteKnowledgeEntry(id string) error {
	res, err := s.db.Exec(`DELETE FROM knowledge_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
