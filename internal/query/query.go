// Package query translates read requests into store queries and builds
// the pagination envelope.
package query

import (
	"context"
	"fmt"
	"time"

	"feedhub/internal/model"
	"feedhub/internal/storage"
)

// Limit bounds for one page of articles.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Params are the caller-supplied filters for an article listing.
type Params struct {
	Limit    int
	Category string
	Locale   string
	Sources  []string
	Since    *time.Time
	After    int64 // cursor: id of the last article of the previous page
}

// Page is one page of results. HasMore is a hint: it is true exactly when
// the page is full, which can report true even on the final page.
type Page struct {
	Articles []model.ArticleWithSource
	Limit    int
	LastID   int64
	HasMore  bool
}

// Service answers article listing requests against a Storage.
type Service struct {
	store storage.Storage
}

// New creates a Service.
func New(store storage.Storage) *Service {
	return &Service{store: store}
}

// Articles returns one page of articles, newest first. The After cursor is
// resolved to that article's pubDate and constrains the page to strictly
// older articles; a cursor that no longer resolves applies no constraint.
func (s *Service) Articles(ctx context.Context, p Params) (*Page, error) {
	limit := clampLimit(p.Limit)

	var before *time.Time
	if p.After != 0 {
		pubDate, err := s.store.GetArticlePubDate(ctx, p.After)
		if err != nil {
			return nil, fmt.Errorf("resolve cursor: %w", err)
		}
		before = pubDate
	}

	articles, err := s.store.QueryArticles(ctx, storage.ArticleQuery{
		Category:  p.Category,
		Locale:    p.Locale,
		SourceIDs: p.Sources,
		Since:     p.Since,
		Before:    before,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	page := &Page{
		Articles: articles,
		Limit:    limit,
		HasMore:  len(articles) == limit,
	}
	if len(articles) > 0 {
		page.LastID = articles[len(articles)-1].ID
	}
	return page, nil
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
