// Package postgres implements store.Store on PostgreSQL via the pgx stdlib
// driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chatvault/chatvault/internal/store"
)

// Open opens a PostgreSQL connection and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a store backed by an existing connection.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

// EnsureSchema creates all tables if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS archives (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id BIGSERIAL PRIMARY KEY,
			archive_id BIGINT NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INT NOT NULL,
			UNIQUE(archive_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id BIGSERIAL PRIMARY KEY,
			group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			contact_id BIGINT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			service TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			archive_id BIGINT NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
			date_started TIMESTAMPTZ NOT NULL,
			local_account_id BIGINT NOT NULL,
			remote_account_id BIGINT NOT NULL,
			conference BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS speakers (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position INT NOT NULL,
			name TEXT NOT NULL,
			account_id BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS replies (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position INT NOT NULL,
			date TIMESTAMPTZ NOT NULL,
			speaker_id BIGINT NOT NULL DEFAULT 0,
			text TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}

type pgStore struct{ db *sql.DB }

func (s *pgStore) Archives() store.Archives           { return &archives{db: s.db} }
func (s *pgStore) Groups() store.Groups               { return &groups{db: s.db} }
func (s *pgStore) Contacts() store.Contacts           { return &contacts{db: s.db} }
func (s *pgStore) Accounts() store.Accounts           { return &accounts{db: s.db} }
func (s *pgStore) Conversations() store.Conversations { return &conversations{db: s.db} }

func (s *pgStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

type archives struct{ db *sql.DB }

func (a *archives) Create(ctx context.Context, name string) (int64, error) {
	var id int64
	err := a.db.QueryRowContext(ctx, `INSERT INTO archives (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, err
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
	_, err := a.db.ExecContext(ctx, `DELETE FROM archives WHERE id = $1`, id)
	return err
}

type groups struct{ db *sql.DB }

func (g *groups) Create(ctx context.Context, row store.GroupRow) (int64, error) {
	var id int64
	err := g.db.QueryRowContext(ctx,
		`INSERT INTO groups (archive_id, name, position) VALUES ($1,$2,$3) RETURNING id`,
		row.ArchiveID, row.Name, row.Position).Scan(&id)
	return id, err
}

func (g *groups) Rename(ctx context.Context, id int64, name string) error {
	_, err := g.db.ExecContext(ctx, `UPDATE groups SET name = $1 WHERE id = $2`, name, id)
	return err
}

func (g *groups) Delete(ctx context.Context, id int64) error {
	_, err := g.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	return err
}

func (g *groups) List(ctx context.Context, archiveID int64) ([]store.GroupRow, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, archive_id, name, position FROM groups WHERE archive_id = $1 ORDER BY position`, archiveID)
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
	var id int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO contacts (group_id, name) VALUES ($1,$2) RETURNING id`,
		row.GroupID, row.Name).Scan(&id)
	return id, err
}

func (c *contacts) Rename(ctx context.Context, id int64, name string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE contacts SET name = $1 WHERE id = $2`, name, id)
	return err
}

func (c *contacts) Move(ctx context.Context, id, groupID int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE contacts SET group_id = $1 WHERE id = $2`, groupID, id)
	return err
}

func (c *contacts) Delete(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	return err
}

func (c *contacts) List(ctx context.Context, archiveID int64) ([]store.ContactRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.group_id, c.name FROM contacts c
		JOIN groups g ON g.id = c.group_id
		WHERE g.archive_id = $1 ORDER BY c.id`, archiveID)
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
	var id int64
	err := a.db.QueryRowContext(ctx,
		`INSERT INTO accounts (contact_id, service, name) VALUES ($1,$2,$3) RETURNING id`,
		row.ContactID, row.Service, row.Name).Scan(&id)
	return id, err
}

func (a *accounts) Rename(ctx context.Context, id int64, name string) error {
	_, err := a.db.ExecContext(ctx, `UPDATE accounts SET name = $1 WHERE id = $2`, name, id)
	return err
}

func (a *accounts) Move(ctx context.Context, id, contactID int64) error {
	_, err := a.db.ExecContext(ctx, `UPDATE accounts SET contact_id = $1 WHERE id = $2`, contactID, id)
	return err
}

func (a *accounts) Delete(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (a *accounts) List(ctx context.Context, archiveID int64) ([]store.AccountRow, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT a.id, a.contact_id, a.service, a.name FROM accounts a
		JOIN contacts c ON c.id = a.contact_id
		JOIN groups g ON g.id = c.group_id
		WHERE g.archive_id = $1 ORDER BY a.id`, archiveID)
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
	var id int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO conversations (archive_id, date_started, local_account_id, remote_account_id, conference)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		row.ArchiveID, row.DateStarted, row.LocalAccountID, row.RemoteAccountID, row.Conference).Scan(&id)
	return id, err
}

func (c *conversations) AddSpeaker(ctx context.Context, row store.SpeakerRow) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO speakers (conversation_id, position, name, account_id) VALUES ($1,$2,$3,$4) RETURNING id`,
		row.ConversationID, row.Position, row.Name, row.AccountID).Scan(&id)
	return id, err
}

func (c *conversations) AddReply(ctx context.Context, row store.ReplyRow) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO replies (conversation_id, position, date, speaker_id, text) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		row.ConversationID, row.Position, row.Date, row.SpeakerID, row.Text).Scan(&id)
	return id, err
}

func (c *conversations) Delete(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

func (c *conversations) List(ctx context.Context, archiveID int64) ([]store.ConversationRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, archive_id, date_started, local_account_id, remote_account_id, conference
		FROM conversations WHERE archive_id = $1 ORDER BY id`, archiveID)
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
		FROM speakers WHERE conversation_id = $1 ORDER BY position`, conversationID)
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
		FROM replies WHERE conversation_id = $1 ORDER BY position`, conversationID)
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
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE archive_id = $1`, archiveID).Scan(&n)
	return n, err
}

func (c *conversations) CountReplies(ctx context.Context, archiveID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM replies r
		JOIN conversations c ON c.id = r.conversation_id
		WHERE c.archive_id = $1`, archiveID).Scan(&n)
	return n, err
}

func (c *conversations) CountDependentOn(ctx context.Context, archiveID int64, accountIDs []int64) (int, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	parts := make([]string, len(accountIDs))
	args := []any{archiveID}
	for i, id := range accountIDs {
		parts[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	in := strings.Join(parts, ",")
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT c.id) FROM conversations c
		LEFT JOIN speakers s ON s.conversation_id = c.id
		WHERE c.archive_id = $1
		  AND (c.local_account_id IN (%[1]s)
		    OR c.remote_account_id IN (%[1]s)
		    OR s.account_id IN (%[1]s))`, in)
	var n int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
