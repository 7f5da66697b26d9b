package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// WAL for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			name           TEXT NOT NULL,
			email          TEXT NOT NULL UNIQUE,
			tier           TEXT NOT NULL DEFAULT 'standard',
			renewal_active INTEGER NOT NULL DEFAULT 1,
			renewal_date   TEXT
		);

		CREATE TABLE IF NOT EXISTS known_issues (
			issue_key        TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			category         TEXT NOT NULL,
			fix              TEXT NOT NULL,
			confidence_boost REAL NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS feedback (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id            TEXT NOT NULL,
			user_id              INTEGER NOT NULL,
			intent               TEXT NOT NULL DEFAULT '',
			confidence           REAL NOT NULL DEFAULT 0,
			diagnostic_reasoning TEXT NOT NULL DEFAULT '',
			status               TEXT NOT NULL DEFAULT '',
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_feedback_ticket ON feedback(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_issues_category ON known_issues(category);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// AddUser inserts a user and returns it with the assigned ID.
func (s *SQLiteStore) AddUser(ctx context.Context, u User) (User, error) {
	var renewal *string
	if !u.RenewalDate.IsZero() {
		v := u.RenewalDate.Format(time.RFC3339)
		renewal = &v
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, tier, renewal_active, renewal_date)
		VALUES (?, ?, ?, ?, ?)
	`, u.Name, u.Email, string(u.Tier), boolToInt(u.RenewalActive), renewal)
	if err != nil {
		return User{}, fmt.Errorf("store: add user: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	return u, nil
}

// AddKnownIssue upserts a knowledge-base entry.
func (s *SQLiteStore) AddKnownIssue(ctx context.Context, issue KnownIssue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_issues (issue_key, title, category, fix, confidence_boost)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(issue_key) DO UPDATE SET
			title=excluded.title, category=excluded.category,
			fix=excluded.fix, confidence_boost=excluded.confidence_boost
	`, issue.Key, issue.Title, issue.Category, issue.Fix, issue.ConfidenceBoost)
	if err != nil {
		return fmt.Errorf("store: add known issue: %w", err)
	}
	return nil
}

// ResolveUser implements UserDirectory.
func (s *SQLiteStore) ResolveUser(ctx context.Context, ref string) (User, error) {
	needle := strings.TrimSpace(ref)
	if needle == "" {
		return User{}, fmt.Errorf("resolve user %q: %w", ref, domain.ErrUserNotFound)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, tier, renewal_active, renewal_date
		FROM users
		WHERE LOWER(email) = LOWER(?) OR LOWER(name) = LOWER(?)
		LIMIT 1
	`, needle, needle)

	var (
		u       User
		tier    string
		active  int
		renewal *string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &tier, &active, &renewal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("resolve user %q: %w", ref, domain.ErrUserNotFound)
		}
		return User{}, fmt.Errorf("store: resolve user: %w", err)
	}
	u.Tier = domain.ParseTier(tier)
	u.RenewalActive = active != 0
	if renewal != nil {
		u.RenewalDate, _ = time.Parse(time.RFC3339, *renewal)
	}
	return u, nil
}

// FindMatch implements KnowledgeBase.
func (s *SQLiteStore) FindMatch(ctx context.Context, intent, text string) (KnownIssue, error) {
	if key := triggeredIssueKey(text); key != "" {
		issue, err := s.issueByKey(ctx, key)
		if err == nil {
			return issue, nil
		}
		if !errors.Is(err, domain.ErrNoKnownIssue) {
			return KnownIssue{}, err
		}
	}

	if intent == "" {
		return KnownIssue{}, domain.ErrNoKnownIssue
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT issue_key, title, category, fix, confidence_boost
		FROM known_issues
		WHERE category LIKE ?
		LIMIT 1
	`, "%"+intent+"%")
	return scanIssue(row)
}

func (s *SQLiteStore) issueByKey(ctx context.Context, key string) (KnownIssue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT issue_key, title, category, fix, confidence_boost
		FROM known_issues
		WHERE issue_key = ?
	`, key)
	return scanIssue(row)
}

// SaveFeedback implements FeedbackStore.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb Feedback) error {
	created := fb.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := fb.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (ticket_id, user_id, intent, confidence, diagnostic_reasoning, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, fb.TicketID, fb.UserID, fb.Intent, fb.Confidence, fb.DiagnosticReasoning, fb.Status,
		created.Format(time.RFC3339), updated.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: save feedback: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func scanIssue(row *sql.Row) (KnownIssue, error) {
	var issue KnownIssue
	err := row.Scan(&issue.Key, &issue.Title, &issue.Category, &issue.Fix, &issue.ConfidenceBoost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return KnownIssue{}, domain.ErrNoKnownIssue
		}
		return KnownIssue{}, fmt.Errorf("store: scan issue: %w", err)
	}
	return issue, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
