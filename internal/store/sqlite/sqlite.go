// Package sqlite implements store.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/chatvault/chatvault/internal/store"
)

// Open opens (or creates) a SQLite database at the given path, enables WAL
// journal mode and foreign keys, and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB wraps an existing connection (used by tests with :memory:).
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

// New opens path and returns a ready store.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// EnsureSchema creates all tables if missing. Exposed for tests that open
// their own connection.
func EnsureSchema(db *sql.DB) error { return ensureSchema(db) }

func ensureSchema(db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS archives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			archive_id INTEGER NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			UNIQUE(archive_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contact_id INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			service TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			archive_id INTEGER NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
			date_started TIMESTAMP NOT NULL,
			local_account_id INTEGER NOT NULL,
			remote_account_id INTEGER NOT NULL,
			conference INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS speakers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			account_id INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS replies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			date TIMESTAMP NOT NULL,
			speaker_id INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Archives() store.Archives           { return &archives{db: s.db} }
func (s *sqliteStore) Groups() store.Groups               { return &groups{db: s.db} }
func (s *sqliteStore) Contacts() store.Contacts           { return &contacts{db: s.db} }
func (s *sqliteStore) Accounts() store.Accounts           { return &accounts{db: s.db} }
func (s *sqliteStore) Conversations() store.Conversations { return &conversations{db: s.db} }

func (s *sqliteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func insert(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type archives struct{ db *sql.DB }

func (a *archives) Create(ctx context.Context, name string) (int64, error) {
	return insert(ctx, a.db, `INSERT INTO archives (name) VALUES (?)`, name)
}

func (a *archives) List(ctx context.Context) ([]store.ArchiveRow, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, name FROM archives ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ArchiveRow
	for rows.Next() {
		var r store.ArchiveRow
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (a *archives) Delete(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM archives WHERE id = ?`, id)
	return err
}

type groups struct{ db *sql.DB }

func (g *groups) Create(ctx context.Context, row store.GroupRow) (int64, error) {
	return insert(ctx, g.db, `INSERT INTO groups (archive_id, name, position) VALUES (?,?,?)`,
		row.ArchiveID, row.Name, row.Position)
}

func (g *groups) Rename(ctx context.Context, id int64, name string) error {
	_, err := g.db.ExecContext(ctx, `UPDATE groups SET name = ? WHERE id = ?`, name, id)
	return err
}

func (g *groups) Delete(ctx context.Context, id int64) error {
	_, err := g.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	return err
}

func (g *groups) List(ctx context.Context, archiveID int64) ([]store.GroupRow, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, archive_id, name, position FROM groups WHERE archive_id = ? ORDER BY position`, archiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.GroupRow
	for rows.Next() {
		var r store.GroupRow
		if err := rows.Scan(&r.ID, &r.ArchiveID, &r.Name, &r.Position); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type contacts struct{ db *sql.DB }

func (c *contacts) Create(ctx context.Context, row store.ContactRow) (int64, error) {
	return insert(ctx, c.db, `INSERT INTO contacts (group_id, name) VALUES (?,?)`, row.GroupID, row.Name)
}

func (c *contacts) Rename(ctx context.Context, id int64, name string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE contacts SET name = ? WHERE id = ?`, name, id)
	return err
}

func (c *contacts) Move(ctx context.Context, id, groupID int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE contacts SET group_id = ? WHERE id = ?`, groupID, id)
	return err
}

func (c *contacts) Delete(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	return err
}

func (c *contacts) List(ctx context.Context, archiveID int64) ([]store.ContactRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.group_id, c.name FROM contacts c
		JOIN groups g ON g.id = c.group_id
		WHERE g.archive_id = ? ORDER BY c.id`, archiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ContactRow
	for rows.Next() {
		var r store.ContactRow
		if err := rows.Scan(&r.ID, &r.GroupID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type accounts struct{ db *sql.DB }

func (a *accounts) Create(ctx context.Context, row store.AccountRow) (int64, error) {
	return insert(ctx, a.db, `INSERT INTO accounts (contact_id, service, name) VALUES (?,?,?)`,
		row.ContactID, row.Service, row.Name)
}

func (a *accounts) Rename(ctx context.Context, id int64, name string) error {
	_, err := a.db.ExecContext(ctx, `UPDATE accounts SET name = ? WHERE id = ?`, name, id)
	return err
}

func (a *accounts) Move(ctx context.Context, id, contactID int64) error {
	_, err := a.db.ExecContext(ctx, `UPDATE accounts SET contact_id = ? WHERE id = ?`, contactID, id)
	return err
}

func (a *accounts) Delete(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

func (a *accounts) List(ctx context.Context, archiveID int64) ([]store.AccountRow, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT a.id, a.contact_id, a.service, a.name FROM accounts a
		JOIN contacts c ON c.id = a.contact_id
		JOIN groups g ON g.id = c.group_id
		WHERE g.archive_id = ? ORDER BY a.id`, archiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.AccountRow
	for rows.Next() {
		var r store.AccountRow
		if err := rows.Scan(&r.ID, &r.ContactID, &r.Service, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type conversations struct{ db *sql.DB }

func (c *conversations) Create(ctx context.Context, row store.ConversationRow) (int64, error) {
	return insert(ctx, c.db, `
		INSERT INTO conversations (archive_id, date_started, local_account_id, remote_account_id, conference)
		VALUES (?,?,?,?,?)`,
		row.ArchiveID, row.DateStarted, row.LocalAccountID, row.RemoteAccountID, row.Conference)
}

func (c *conversations) AddSpeaker(ctx context.Context, row store.SpeakerRow) (int64, error) {
	return insert(ctx, c.db, `INSERT INTO speakers (conversation_id, position, name, account_id) VALUES (?,?,?,?)`,
		row.ConversationID, row.Position, row.Name, row.AccountID)
}

func (c *conversations) AddReply(ctx context.Context, row store.ReplyRow) (int64, error) {
	return insert(ctx, c.db, `INSERT INTO replies (conversation_id, position, date, speaker_id, text) VALUES (?,?,?,?,?)`,
		row.ConversationID, row.Position, row.Date, row.SpeakerID, row.Text)
}

func (c *conversations) Delete(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (c *conversations) List(ctx context.Context, archiveID int64) ([]store.ConversationRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, archive_id, date_started, local_account_id, remote_account_id, conference
		FROM conversations WHERE archive_id = ? ORDER BY id`, archiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ConversationRow
	for rows.Next() {
		var r store.ConversationRow
		if err := rows.Scan(&r.ID, &r.ArchiveID, &r.DateStarted, &r.LocalAccountID, &r.RemoteAccountID, &r.Conference); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *conversations) Speakers(ctx context.Context, conversationID int64) ([]store.SpeakerRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, conversation_id, position, name, account_id
		FROM speakers WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.SpeakerRow
	for rows.Next() {
		var r store.SpeakerRow
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Position, &r.Name, &r.AccountID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *conversations) Replies(ctx context.Context, conversationID int64) ([]store.ReplyRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, conversation_id, position, date, speaker_id, text
		FROM replies WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ReplyRow
	for rows.Next() {
		var r store.ReplyRow
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Position, &r.Date, &r.SpeakerID, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *conversations) Count(ctx context.Context, archiveID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE archive_id = ?`, archiveID).Scan(&n)
	return n, err
}

func (c *conversations) CountReplies(ctx context.Context, archiveID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM replies r
		JOIN conversations c ON c.id = r.conversation_id
		WHERE c.archive_id = ?`, archiveID).Scan(&n)
	return n, err
}

func (c *conversations) CountDependentOn(ctx context.Context, archiveID int64, accountIDs []int64) (int, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")
	args := []any{archiveID}
	for i := 0; i < 3; i++ {
		for _, id := range accountIDs {
			args = append(args, id)
		}
	}
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT c.id) FROM conversations c
		LEFT JOIN speakers s ON s.conversation_id = c.id
		WHERE c.archive_id = ?
		  AND (c.local_account_id IN (%[1]s)
		    OR c.remote_account_id IN (%[1]s)
		    OR s.account_id IN (%[1]s))`, placeholders)
	// placeholders repeat three times in the query text
	var n int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
