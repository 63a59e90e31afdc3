package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/rolodex/internal/core"
)

// PoolConfig tunes the Postgres connection pool. Zero values keep the
// pgxpool defaults.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contacts (
	user_id      TEXT        NOT NULL,
	id           TEXT        NOT NULL,
	name         TEXT        NOT NULL,
	company      TEXT,
	role         TEXT,
	location     TEXT,
	emails       TEXT[]      NOT NULL DEFAULT '{}',
	phones       TEXT[]      NOT NULL DEFAULT '{}',
	linkedin_url TEXT,
	other_urls   JSONB       NOT NULL DEFAULT '[]',
	notes        TEXT        NOT NULL DEFAULT '',
	source       TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS contacts_user_created_idx ON contacts (user_id, created_at, id);
`

const contactColumns = `id, name, company, role, location, emails, phones, linkedin_url, other_urls, notes, source, created_at, updated_at`

const upsertContactSQL = `
INSERT INTO contacts (user_id, ` + contactColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (user_id, id) DO UPDATE SET
	name = EXCLUDED.name,
	company = EXCLUDED.company,
	role = EXCLUDED.role,
	location = EXCLUDED.location,
	emails = EXCLUDED.emails,
	phones = EXCLUDED.phones,
	linkedin_url = EXCLUDED.linkedin_url,
	other_urls = EXCLUDED.other_urls,
	notes = EXCLUDED.notes,
	source = EXCLUDED.source,
	updated_at = EXCLUDED.updated_at`

// PostgresStore persists contacts in a Postgres table keyed by (user, id).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and migrates.
func NewPostgresStore(ctx context.Context, dsn string, pc PoolConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = int32(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, userID string, c core.Contact) error {
	if c.ID == "" {
		c.ID = NewULID()
	}
	args, err := contactArgs(userID, c)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertContactSQL, args...); err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (core.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE user_id = $1 AND id = $2`, userID, id)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Contact{}, core.ErrContactNotFound
	}
	return c, err
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]core.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []core.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BulkPut upserts all contacts in one transaction using a pipelined batch.
func (s *PostgresStore) BulkPut(ctx context.Context, userID string, contacts []core.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range contacts {
		if c.ID == "" {
			return errMissingID
		}
		args, err := contactArgs(userID, c)
		if err != nil {
			return err
		}
		batch.Queue(upsertContactSQL, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := range contacts {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert contact %d: %w", i+1, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrContactNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func contactArgs(userID string, c core.Contact) ([]any, error) {
	urls, err := json.Marshal(nonNil(c.ContactInfo.OtherURLs))
	if err != nil {
		return nil, fmt.Errorf("encode other urls: %w", err)
	}
	return []any{
		userID,
		c.ID,
		c.Name,
		toPgText(c.Company),
		toPgText(c.Role),
		toPgText(c.Location),
		nonNil(c.ContactInfo.Emails),
		nonNil(c.ContactInfo.Phones),
		toPgText(c.ContactInfo.LinkedInURL),
		urls,
		c.Notes,
		string(c.Source),
		c.CreatedAt,
		c.UpdatedAt,
	}, nil
}

func scanContact(row pgx.Row) (core.Contact, error) {
	var (
		c                            core.Contact
		company, role, loc, linkedin pgtype.Text
		urls                         []byte
		source                       string
	)
	err := row.Scan(&c.ID, &c.Name, &company, &role, &loc,
		&c.ContactInfo.Emails, &c.ContactInfo.Phones, &linkedin, &urls,
		&c.Notes, &source, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return core.Contact{}, err
	}
	c.Company = company.String
	c.Role = role.String
	c.Location = loc.String
	c.ContactInfo.LinkedInURL = linkedin.String
	c.Source = core.Source(source)
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &c.ContactInfo.OtherURLs); err != nil {
			return core.Contact{}, fmt.Errorf("decode other urls: %w", err)
		}
	}
	return c, nil
}

// toPgText maps blank strings to NULL.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
