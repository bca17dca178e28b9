// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"feedhub/internal/model"
)

// ArticleQuery describes the filters applied to an article page query.
// Zero values mean "no constraint" for the optional fields.
type ArticleQuery struct {
	Category  string
	Locale    string
	SourceIDs []string
	Since     *time.Time
	Before    *time.Time // exclusive upper bound on pub_date, from a cursor
	Limit     int
}

// Storage is the interface for all persistence operations.
type Storage interface {
	ListSources(ctx context.Context) ([]model.Source, error)
	UpsertSources(ctx context.Context, sources []model.Source) error
	GetSourceETag(ctx context.Context, sourceID string) (string, error)
	SetFetchInfo(ctx context.Context, sourceID, etag string, fetchedAt time.Time) error

	InsertArticles(ctx context.Context, articles []model.Article) (int, error)
	DeleteArticlesBefore(ctx context.Context, cutoff time.Time) (int, error)
	QueryArticles(ctx context.Context, q ArticleQuery) ([]model.ArticleWithSource, error)
	GetArticlePubDate(ctx context.Context, id int64) (*time.Time, error)

	Close() error
}
