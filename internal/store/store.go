package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/yangwenmai/threadauto/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ LedgerReader = (*Store)(nil)
	_ LedgerWriter = (*Store)(nil)
	_ Claimer      = (*Store)(nil)
)

// timeLayout is fixed-width so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var publicationColumns = []string{
	"id", "article_id", "title", "url", "outcome", "root_handle", "reply_handles",
	"published_units", "total_units", "detail", "created_at",
}

// Store is the SQLite-backed publication ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 2

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: append-only publications ledger
		s.migrateV2, // v1 → v2: per-article claims
	}
	if len(migrations) != currentSchemaVersion {
		return fmt.Errorf("schema version %d has %d migrations", currentSchemaVersion, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

// migrateV1 creates the ledger. Triggers reject UPDATE and DELETE.
func (s *Store) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS publications (
		id              TEXT PRIMARY KEY,
		article_id      TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		url             TEXT NOT NULL DEFAULT '',
		outcome         TEXT NOT NULL,
		root_handle     TEXT NOT NULL DEFAULT '',
		reply_handles   TEXT NOT NULL DEFAULT '[]',
		published_units INTEGER NOT NULL DEFAULT 0,
		total_units     INTEGER NOT NULL DEFAULT 0,
		detail          TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_publications_article ON publications(article_id);
	CREATE INDEX IF NOT EXISTS idx_publications_created ON publications(created_at DESC);

	CREATE TRIGGER IF NOT EXISTS publications_no_update BEFORE UPDATE ON publications
	BEGIN SELECT RAISE(ABORT, 'publications ledger is append-only'); END;
	CREATE TRIGGER IF NOT EXISTS publications_no_delete BEFORE DELETE ON publications
	BEGIN SELECT RAISE(ABORT, 'publications ledger is append-only'); END;
	`)
	return err
}

// migrateV2 adds the claims table (v1 → v2).
func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS claims (
		article_id TEXT PRIMARY KEY,
		claimed_at TEXT NOT NULL
	)`)
	return err
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

// Has reports whether any record exists for the exact article ID.
func (s *Store) Has(ctx context.Context, articleID string) (bool, error) {
	query, args, err := psql.Select("1").From("publications").
		Where(sq.Eq{"article_id": articleID}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", articleID, err)
	}
	return true, nil
}

// Record appends a publication record.
func (s *Store) Record(ctx context.Context, rec model.PublicationRecord) error {
	if rec.ArticleID == "" {
		return errors.New("record: empty article id")
	}
	replies := rec.ReplyHandles
	if replies == nil {
		replies = []string{}
	}
	handles, err := json.Marshal(replies)
	if err != nil {
		return fmt.Errorf("marshal reply handles: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query, args, err := psql.Insert("publications").Columns(publicationColumns...).Values(
		rec.ID, rec.ArticleID, rec.Title, rec.URL, rec.Outcome, rec.RootHandle, string(handles),
		rec.PublishedUnits, rec.TotalUnits, rec.Detail, createdAt.UTC().Format(timeLayout),
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert publication %s: %w", rec.ArticleID, err)
	}
	return nil
}

// List returns up to limit records, newest first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]model.PublicationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := psql.Select(publicationColumns...).From("publications").
		OrderBy("created_at DESC", "rowid DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var out []model.PublicationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of ledger records.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("publications").ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count publications: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

// Claim takes the per-article lock. A claim older than ttl is considered left
// behind by a crashed run and is taken over. The upsert is a single statement,
// so two runs cannot both win.
func (s *Store) Claim(ctx context.Context, articleID string, ttl time.Duration) (func(), error) {
	now := s.now().UTC()
	staleBefore := now.Add(-ttl).Format(timeLayout)

	query, args, err := psql.Insert("claims").Columns("article_id", "claimed_at").
		Values(articleID, now.Format(timeLayout)).
		Suffix("ON CONFLICT(article_id) DO UPDATE SET claimed_at = excluded.claimed_at WHERE claims.claimed_at < ?", staleBefore).
		ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", articleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrClaimed
	}

	release := func() {
		query, args, err := psql.Delete("claims").Where(sq.Eq{"article_id": articleID}).ToSql()
		if err != nil {
			return
		}
		// Background context: release must run even when the run's ctx is done.
		s.db.ExecContext(context.Background(), query, args...)
	}
	return release, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.PublicationRecord, error) {
	var (
		rec       model.PublicationRecord
		handles   string
		createdAt string
	)
	err := row.Scan(&rec.ID, &rec.ArticleID, &rec.Title, &rec.URL, &rec.Outcome, &rec.RootHandle,
		&handles, &rec.PublishedUnits, &rec.TotalUnits, &rec.Detail, &createdAt)
	if err != nil {
		return rec, fmt.Errorf("scan publication: %w", err)
	}
	if err := json.Unmarshal([]byte(handles), &rec.ReplyHandles); err != nil {
		return rec, fmt.Errorf("decode reply handles for %s: %w", rec.ID, err)
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}
