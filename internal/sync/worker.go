package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/search"
	"github.com/standupsite/site/internal/storage"
)

const concurrency = 5

// Worker mirrors content store documents into local storage and the search index
type Worker struct {
	accessor *content.Accessor
	db       *storage.DB
	index    *search.Index
}

// NewWorker creates a new sync worker reading through accessor
func NewWorker(accessor *content.Accessor, db *storage.DB, index *search.Index) *Worker {
	return &Worker{
		accessor: accessor,
		db:       db,
		index:    index,
	}
}

// Stats holds sync statistics
type Stats struct {
	Total    int
	New      int
	Updated  int
	Skipped  int
	Removed  int
	Invalid  int
	Errors   int
	Duration time.Duration
}

type job struct {
	kind string
	raw  json.RawMessage
}

// Sync performs a full sync of every document kind
func (w *Worker) Sync(ctx context.Context) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	log.Info().Msg("starting sync")

	// 1. List every kind; a kind that fails keeps its mirror rows untouched
	var jobs []job
	for _, kind := range content.Kinds {
		docs, err := w.accessor.ListKind(ctx, kind)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error().Err(err).Str("kind", kind).Msg("list failed")
			stats.Errors++
			continue
		}

		ids := make([]string, 0, len(docs))
		for _, raw := range docs {
			jobs = append(jobs, job{kind: kind, raw: raw})
			var meta content.Meta
			if err := json.Unmarshal(raw, &meta); err == nil && meta.ID != "" {
				ids = append(ids, meta.ID)
			}
		}

		if err := w.removeMissing(kind, ids, stats); err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("remove stale documents failed")
			stats.Errors++
		}

		log.Info().Str("kind", kind).Int("documents", len(docs)).Msg("listed")
	}

	stats.Total = len(jobs)

	// 2. Store and index with a fixed pool
	jobChan := make(chan job, len(jobs))
	for _, j := range jobs {
		jobChan <- j
	}
	close(jobChan)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if ctx.Err() != nil {
					return
				}
				if err := w.syncDocument(j, stats, &mu); err != nil {
					log.Error().Err(err).Str("kind", j.kind).Msg("sync document failed")
					mu.Lock()
					stats.Errors++
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	log.Info().
		Int("new", stats.New).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("removed", stats.Removed).
		Int("invalid", stats.Invalid).
		Int("errors", stats.Errors).
		Dur("duration", stats.Duration).
		Msg("sync complete")

	return stats, nil
}

// removeMissing drops mirrored documents that no longer exist upstream
func (w *Worker) removeMissing(kind string, keep []string, stats *Stats) error {
	removed, err := w.db.DeleteMissing(kind, keep)
	if err != nil {
		return err
	}
	for _, id := range removed {
		if err := w.index.Delete(id); err != nil {
			return fmt.Errorf("unindex %s: %w", id, err)
		}
	}
	stats.Removed += len(removed)
	return nil
}

// syncDocument stores and indexes a single document
func (w *Worker) syncDocument(j job, stats *Stats, mu *sync.Mutex) error {
	// Invalid documents are still mirrored; the site renders whatever upstream holds
	if err := content.ValidateRaw(j.kind, j.raw); err != nil {
		log.Warn().Err(err).Str("kind", j.kind).Msg("document fails schema validation")
		mu.Lock()
		stats.Invalid++
		mu.Unlock()
	}

	doc, err := storage.NewDocument(j.raw)
	if err != nil {
		return err
	}

	existingHash, err := w.db.GetContentHash(doc.ID)
	if err != nil {
		return fmt.Errorf("get content hash: %w", err)
	}

	if existingHash == doc.ContentHash {
		mu.Lock()
		stats.Skipped++
		mu.Unlock()
		return nil
	}

	doc.SyncedAt = time.Now()
	if err := w.db.Upsert(doc); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	indexDoc, err := search.FromDocument(j.kind, j.raw)
	if err != nil {
		return fmt.Errorf("build index document: %w", err)
	}
	if err := w.index.IndexDocument(indexDoc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	mu.Lock()
	if existingHash == "" {
		stats.New++
	} else {
		stats.Updated++
	}
	mu.Unlock()

	log.Debug().Str("kind", j.kind).Str("id", doc.ID).Msg("synced")
	return nil
}
