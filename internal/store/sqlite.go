package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/rolodex/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contacts (
	user_id      TEXT NOT NULL,
	id           TEXT NOT NULL,
	name         TEXT NOT NULL,
	company      TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	emails       TEXT NOT NULL DEFAULT '[]',
	phones       TEXT NOT NULL DEFAULT '[]',
	linkedin_url TEXT NOT NULL DEFAULT '',
	other_urls   TEXT NOT NULL DEFAULT '[]',
	notes        TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS idx_contacts_user_seq ON contacts(user_id, seq);
`

const sqliteUpsert = `
INSERT INTO contacts (user_id, ` + contactColumns + `, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	(SELECT COALESCE(MAX(seq), 0) + 1 FROM contacts WHERE user_id = ?))
ON CONFLICT(user_id, id) DO UPDATE SET
	name = excluded.name,
	company = excluded.company,
	role = excluded.role,
	location = excluded.location,
	emails = excluded.emails,
	phones = excluded.phones,
	linkedin_url = excluded.linkedin_url,
	other_urls = excluded.other_urls,
	notes = excluded.notes,
	source = excluded.source,
	updated_at = excluded.updated_at`

// SQLiteStore keeps contacts in a local SQLite file. List arrays are
// stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps the seq subquery consistent.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Add(ctx context.Context, userID string, c core.Contact) error {
	if c.ID == "" {
		c.ID = NewULID()
	}
	args, err := sqliteArgs(userID, c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, args...); err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (core.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE user_id = ? AND id = ?`, userID, id)
	c, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Contact{}, core.ErrContactNotFound
	}
	return c, err
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]core.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []core.Contact
	for rows.Next() {
		c, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BulkPut upserts all contacts in one transaction.
func (s *SQLiteStore) BulkPut(ctx context.Context, userID string, contacts []core.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	for _, c := range contacts {
		if c.ID == "" {
			return errMissingID
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, c := range contacts {
		args, err := sqliteArgs(userID, c)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert contact %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n == 0 {
		return core.ErrContactNotFound
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func sqliteArgs(userID string, c core.Contact) ([]any, error) {
	emails, err := json.Marshal(nonNil(c.ContactInfo.Emails))
	if err != nil {
		return nil, err
	}
	phones, err := json.Marshal(nonNil(c.ContactInfo.Phones))
	if err != nil {
		return nil, err
	}
	urls, err := json.Marshal(nonNil(c.ContactInfo.OtherURLs))
	if err != nil {
		return nil, err
	}
	return []any{
		userID,
		c.ID,
		c.Name,
		c.Company,
		c.Role,
		c.Location,
		string(emails),
		string(phones),
		c.ContactInfo.LinkedInURL,
		string(urls),
		c.Notes,
		string(c.Source),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.UpdatedAt.UTC().Format(time.RFC3339Nano),
		userID,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (core.Contact, error) {
	var (
		c                            core.Contact
		emails, phones, urls         string
		source, createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Company, &c.Role, &c.Location,
		&emails, &phones, &c.ContactInfo.LinkedInURL, &urls,
		&c.Notes, &source, &createdAt, &updatedAt)
	if err != nil {
		return core.Contact{}, err
	}
	if err := json.Unmarshal([]byte(emails), &c.ContactInfo.Emails); err != nil {
		return core.Contact{}, fmt.Errorf("decode emails: %w", err)
	}
	if err := json.Unmarshal([]byte(phones), &c.ContactInfo.Phones); err != nil {
		return core.Contact{}, fmt.Errorf("decode phones: %w", err)
	}
	if err := json.Unmarshal([]byte(urls), &c.ContactInfo.OtherURLs); err != nil {
		return core.Contact{}, fmt.Errorf("decode other urls: %w", err)
	}
	c.Source = core.Source(source)
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return core.Contact{}, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return core.Contact{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return c, nil
}
