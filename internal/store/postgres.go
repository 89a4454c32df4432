package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vitalsup/internal/model"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const articlesTable = "discovered_articles"

const schema = `
CREATE TABLE IF NOT EXISTS discovered_articles (
	id              TEXT PRIMARY KEY,
	original_title  TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	alternative_url TEXT NOT NULL DEFAULT '',
	triage_status   TEXT NOT NULL,
	doi             TEXT NOT NULL DEFAULT '',
	excerpt         TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL DEFAULT '',
	discovered_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	snapshot_at     TIMESTAMPTZ,
	snapshot_error  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS discovered_articles_triage_status_idx
	ON discovered_articles (triage_status, discovered_at);`

// PgxIface is the subset of pgxpool.Pool the store needs.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists articles in the discovered_articles table.
type PostgresStore struct {
	pool PgxIface
	psql sq.StatementBuilderType
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects a pgx pool to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgresStore(pool), nil
}

func NewPostgresStore(pool PgxIface) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the articles table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

var articleColumns = []string{
	"id", "original_title", "source_url", "alternative_url", "triage_status",
	"doi", "excerpt", "discovered_at", "updated_at", "snapshot_at", "snapshot_error",
}

func scanArticle(row pgx.Row, withContent bool) (*model.Article, error) {
	var a model.Article
	var status string
	dest := []any{
		&a.ID, &a.Title, &a.SourceURL, &a.AlternativeURL, &status,
		&a.DOI, &a.Excerpt, &a.DiscoveredAt, &a.UpdatedAt, &a.SnapshotAt, &a.SnapshotError,
	}
	if withContent {
		dest = append(dest, &a.Content)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.TriageStatus = model.TriageStatus(status)
	return &a, nil
}

func (s *PostgresStore) Save(ctx context.Context, article *model.Article) error {
	query, args, err := s.psql.Insert(articlesTable).
		Columns(append(append([]string{}, articleColumns...), "content")...).
		Values(
			article.ID, article.Title, article.SourceURL, article.AlternativeURL,
			string(article.TriageStatus), article.DOI, article.Excerpt,
			article.DiscoveredAt, article.UpdatedAt, article.SnapshotAt, article.SnapshotError,
			article.Content,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			original_title = EXCLUDED.original_title,
			source_url = EXCLUDED.source_url,
			alternative_url = EXCLUDED.alternative_url,
			triage_status = EXCLUDED.triage_status,
			doi = EXCLUDED.doi,
			excerpt = EXCLUDED.excerpt,
			updated_at = EXCLUDED.updated_at,
			snapshot_at = EXCLUDED.snapshot_at,
			snapshot_error = EXCLUDED.snapshot_error,
			content = CASE WHEN EXCLUDED.content <> '' THEN EXCLUDED.content ELSE discovered_articles.content END`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Article, error) {
	query, args, err := s.psql.Select(append(append([]string{}, articleColumns...), "content")...).
		From(articlesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	article, err := scanArticle(s.pool.QueryRow(ctx, query, args...), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return article, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status model.TriageStatus, limit int) ([]model.Article, error) {
	builder := s.psql.Select(articleColumns...).
		From(articlesTable).
		Where(sq.Eq{"triage_status": string(status)}).
		OrderBy("discovered_at ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

func (s *PostgresStore) UpdateTriage(ctx context.Context, id string, status model.TriageStatus, alternativeURL string) error {
	builder := s.psql.Update(articlesTable).
		Set("triage_status", string(status))
	switch {
	case status != model.StatusAcceptedForLab:
		builder = builder.Set("alternative_url", "")
	case alternativeURL != "":
		builder = builder.Set("alternative_url", alternativeURL)
	}
	query, args, err := builder.
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update triage status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSnapshot never writes triage_status or alternative_url.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, id string, snap SnapshotUpdate) error {
	query, args, err := s.psql.Update(articlesTable).
		Set("original_title", sq.Expr("CASE WHEN original_title = '' THEN ? ELSE original_title END", snap.Title)).
		Set("doi", sq.Expr("CASE WHEN doi = '' THEN ? ELSE doi END", snap.DOI)).
		Set("excerpt", snap.Excerpt).
		Set("content", snap.Content).
		Set("snapshot_at", snap.SnapshotAt.UTC()).
		Set("snapshot_error", "").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build snapshot update: %w", err)
	}
	return s.execOne(ctx, "save snapshot", query, args)
}

func (s *PostgresStore) RecordSnapshotError(ctx context.Context, id string, msg string) error {
	query, args, err := s.psql.Update(articlesTable).
		Set("snapshot_error", msg).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build snapshot error update: %w", err)
	}
	return s.execOne(ctx, "record snapshot error", query, args)
}

// execOne runs an update that must hit exactly one row.
func (s *PostgresStore) execOne(ctx context.Context, op, query string, args []any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
