// Package ingest orchestrates full fetch cycles over all configured sources.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedhub/internal/fetcher"
	"feedhub/internal/model"
	"feedhub/internal/storage"
)

// Cycle runs one full ingestion pass: fetch every source concurrently,
// persist the combined article batch, update per-source fetch state and
// clean up articles outside the retention window.
type Cycle struct {
	store     storage.Storage
	fetcher   *fetcher.Fetcher
	log       *slog.Logger
	retention time.Duration
	now       func() time.Time
}

// NewCycle creates a Cycle.
func NewCycle(store storage.Storage, f *fetcher.Fetcher, log *slog.Logger, retention time.Duration) *Cycle {
	return &Cycle{
		store:     store,
		fetcher:   f,
		log:       log,
		retention: retention,
		now:       time.Now,
	}
}

// Run executes one cycle. Per-source fetch and parse failures are contained
// in the report; only source listing and the batch insert are fatal.
func (c *Cycle) Run(ctx context.Context) (*model.CycleReport, error) {
	sources, err := c.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	report := &model.CycleReport{Results: make([]model.SourceReport, len(sources))}
	if len(sources) == 0 {
		c.log.Info("no sources configured, skipping cycle")
		report.Results = nil
		return report, nil
	}

	// Fan out one fetch per source. Each goroutine writes only its own
	// slot, so the join needs no locking; a slow or failing source never
	// blocks its siblings.
	outcomes := make([]*fetcher.Result, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src model.Source) {
			defer wg.Done()
			res := model.SourceReport{SourceID: src.ID, SourceName: src.Name}

			etag, err := c.store.GetSourceETag(ctx, src.ID)
			if err != nil {
				res.Err = err.Error()
				report.Results[i] = res
				return
			}
			outcome, err := c.fetcher.Fetch(ctx, src, etag)
			if err != nil {
				res.Err = err.Error()
				c.log.Error("fetch source", "source_id", src.ID, "url", src.URL, "error", err)
				report.Results[i] = res
				return
			}
			outcomes[i] = outcome
			res.Skipped = outcome.Skipped
			res.ArticlesFound = len(outcome.Articles)
			report.Results[i] = res
		}(i, src)
	}
	wg.Wait()

	var batch []model.Article
	for _, outcome := range outcomes {
		if outcome != nil && !outcome.Skipped {
			batch = append(batch, outcome.Articles...)
		}
	}
	report.Found = len(batch)

	inserted, err := c.store.InsertArticles(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("insert articles: %w", err)
	}
	report.Inserted = inserted

	fetchedAt := c.now().UTC()
	for i, outcome := range outcomes {
		if outcome == nil || outcome.Skipped {
			continue
		}
		if err := c.store.SetFetchInfo(ctx, sources[i].ID, outcome.ETag, fetchedAt); err != nil {
			c.log.Error("set fetch info", "source_id", sources[i].ID, "error", err)
		}
	}

	// Cleanup failures downgrade to a zero count; they must not fail the cycle.
	cleaned, err := c.store.DeleteArticlesBefore(ctx, c.now().UTC().Add(-c.retention))
	if err != nil {
		c.log.Error("cleanup old articles", "error", err)
		cleaned = 0
	}
	report.Cleaned = cleaned

	for _, r := range report.Results {
		switch {
		case r.Err != "":
			report.Failed++
		case r.Skipped:
			report.Skipped++
		default:
			report.Successful++
		}
	}

	c.log.Info("fetch cycle complete",
		"sources", len(report.Results),
		"successful", report.Successful,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"found", report.Found,
		"inserted", report.Inserted,
		"cleaned", report.Cleaned,
	)
	return report, nil
}

// Runner executes cycles on a fixed interval, once eagerly at startup.
// Cycles never overlap: the loop waits for each pass to finish.
type Runner struct {
	cycle    *Cycle
	log      *slog.Logger
	interval time.Duration
}

// NewRunner creates a Runner.
func NewRunner(cycle *Cycle, interval time.Duration, log *slog.Logger) *Runner {
	return &Runner{cycle: cycle, interval: interval, log: log}
}

// Run starts the ingestion loop, blocking until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if _, err := r.cycle.Run(ctx); err != nil {
		r.log.Error("fetch cycle failed", "error", err)
	}
}
