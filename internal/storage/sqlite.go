package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedhub/internal/model"
	"feedhub/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListSources returns all sources ordered by name.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, homepage, url, locale, logo, last_fetched_at, etag, created_at
		 FROM sources ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpsertSources inserts or updates sources by id. An update replaces the
// descriptive fields but preserves the stored etag and fetch timestamp.
func (s *SQLite) UpsertSources(ctx context.Context, sources []model.Source) error {
	if len(sources) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, src := range sources {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sources (id, name, homepage, url, locale, logo, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   name = excluded.name,
			   homepage = excluded.homepage,
			   url = excluded.url,
			   locale = excluded.locale,
			   logo = excluded.logo`,
			src.ID, src.Name, src.Homepage, src.URL, src.Locale, nullIfEmpty(src.Logo), now,
		)
		if err != nil {
			return fmt.Errorf("upsert source %s: %w", src.ID, err)
		}
	}
	return tx.Commit()
}

// GetSourceETag returns the stored etag for a source, or empty if none.
func (s *SQLite) GetSourceETag(ctx context.Context, sourceID string) (string, error) {
	var etag sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT etag FROM sources WHERE id = ?`, sourceID).Scan(&etag)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get etag: %w", err)
	}
	return etag.String, nil
}

// SetFetchInfo records the etag and fetch timestamp from the last successful fetch.
func (s *SQLite) SetFetchInfo(ctx context.Context, sourceID, etag string, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at = ?, etag = ? WHERE id = ?`,
		fetchedAt.UTC().Format(timeLayout), nullIfEmpty(etag), sourceID,
	)
	if err != nil {
		return fmt.Errorf("set fetch info: %w", err)
	}
	return nil
}

// InsertArticles inserts the batch, ignoring conflicts on link, and returns
// the number of rows actually inserted.
func (s *SQLite) InsertArticles(ctx context.Context, articles []model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	inserted := 0
	for _, a := range articles {
		cats, err := json.Marshal(nonNil(a.Categories))
		if err != nil {
			return 0, fmt.Errorf("marshal categories: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO articles
			   (title, description, link, pub_date, thumbnail, source_id, categories, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.Title, nullIfEmpty(a.Description), a.Link, a.PubDate.UTC().Format(timeLayout),
			nullIfEmpty(a.Thumbnail), a.SourceID, string(cats), now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert article %s: %w", a.Link, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// DeleteArticlesBefore removes all articles whose pub_date is older than cutoff.
func (s *SQLite) DeleteArticlesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM articles WHERE pub_date < ?`, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// QueryArticles returns one page of articles joined with their source,
// newest first. Ties on pub_date are broken by id so repeated queries
// return a stable order.
func (s *SQLite) QueryArticles(ctx context.Context, q ArticleQuery) ([]model.ArticleWithSource, error) {
	var (
		conds []string
		args  []any
	)
	if q.Category != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM json_each(a.categories) WHERE json_each.value = ?)`)
		args = append(args, q.Category)
	}
	if q.Locale != "" {
		conds = append(conds, `s.locale = ?`)
		args = append(args, q.Locale)
	}
	if len(q.SourceIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(q.SourceIDs))
		conds = append(conds, fmt.Sprintf(`a.source_id IN (%s)`, placeholders[:len(placeholders)-2]))
		for _, id := range q.SourceIDs {
			args = append(args, id)
		}
	}
	if q.Since != nil {
		conds = append(conds, `a.pub_date >= ?`)
		args = append(args, q.Since.UTC().Format(timeLayout))
	}
	if q.Before != nil {
		conds = append(conds, `a.pub_date < ?`)
		args = append(args, q.Before.UTC().Format(timeLayout))
	}

	query := `SELECT a.id, a.title, a.description, a.link, a.pub_date, a.thumbnail,
	                 a.source_id, a.categories, a.created_at,
	                 s.name, s.homepage, s.locale, s.logo
	          FROM articles a
	          JOIN sources s ON s.id = a.source_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.pub_date DESC, a.id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []model.ArticleWithSource
	for rows.Next() {
		a, err := scanArticleWithSource(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// GetArticlePubDate resolves a cursor id to the article's pub_date.
// A missing article yields (nil, nil).
func (s *SQLite) GetArticlePubDate(ctx context.Context, id int64) (*time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT pub_date FROM articles WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article pub_date: %w", err)
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("parse pub_date %q: %w", raw, err)
	}
	return &t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (model.Source, error) {
	var src model.Source
	var logo, lastFetched, etag, created sql.NullString
	err := row.Scan(&src.ID, &src.Name, &src.Homepage, &src.URL, &src.Locale, &logo, &lastFetched, &etag, &created)
	if err != nil {
		return src, fmt.Errorf("scan source: %w", err)
	}
	src.Logo = logo.String
	src.ETag = etag.String
	if lastFetched.Valid {
		t, _ := time.Parse(timeLayout, lastFetched.String)
		src.LastFetchedAt = &t
	}
	if created.Valid {
		src.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return src, nil
}

func scanArticleWithSource(row scannable) (model.ArticleWithSource, error) {
	var a model.ArticleWithSource
	var desc, thumb, logo sql.NullString
	var pubDate, created, cats string
	err := row.Scan(&a.ID, &a.Title, &desc, &a.Link, &pubDate, &thumb,
		&a.SourceID, &cats, &created,
		&a.Source.Name, &a.Source.Homepage, &a.Source.Locale, &logo)
	if err != nil {
		return a, fmt.Errorf("scan article: %w", err)
	}
	a.Description = desc.String
	a.Thumbnail = thumb.String
	a.Source.ID = a.SourceID
	a.Source.Logo = logo.String
	a.PubDate, _ = time.Parse(timeLayout, pubDate)
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	if err := json.Unmarshal([]byte(cats), &a.Categories); err != nil {
		a.Categories = []string{}
	}
	return a, nil
}
