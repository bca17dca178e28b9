// Package model defines the domain types used across the application.
package model

import "time"

// Source represents a configured feed to poll.
type Source struct {
	ID            string
	Name          string
	Homepage      string
	URL           string
	Locale        string
	Logo          string
	LastFetchedAt *time.Time
	ETag          string
	CreatedAt     time.Time
}

// Article is a single deduplicated feed item.
// Link is the global dedup key; Description and Thumbnail may be empty.
type Article struct {
	ID          int64
	Title       string
	Description string
	Link        string
	PubDate     time.Time
	Thumbnail   string
	SourceID    string
	Categories  []string
	CreatedAt   time.Time
}

// SourceSummary is the source metadata joined onto a queried article.
type SourceSummary struct {
	ID       string
	Name     string
	Homepage string
	Locale   string
	Logo     string
}

// ArticleWithSource is an article as returned by the read path.
type ArticleWithSource struct {
	Article
	Source SourceSummary
}

// SourceReport describes the outcome of fetching one source in a cycle.
type SourceReport struct {
	SourceID      string
	SourceName    string
	ArticlesFound int
	Skipped       bool
	Err           string
}

// CycleReport aggregates a full ingestion pass over all sources.
type CycleReport struct {
	Results    []SourceReport
	Successful int
	Skipped    int
	Failed     int
	Found      int
	Inserted   int
	Cleaned    int
}
