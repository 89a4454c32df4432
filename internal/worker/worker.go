package worker

import (
	"context"
	"errors"
	"time"

	"vitalsup/internal/metrics"
	"vitalsup/internal/model"
	"vitalsup/internal/store"

	"go.uber.org/zap"
)

type Worker struct {
	store   store.Store
	queue   store.Queue
	logger  *zap.Logger
	scraper Scraper
}

// NewWorker initializes the worker with the DefaultScraper
func NewWorker(st store.Store, queue store.Queue, logger *zap.Logger) *Worker {
	return &Worker{
		store:   st,
		queue:   queue,
		logger:  logger,
		scraper: NewDefaultScraper(30 * time.Second),
	}
}

// Start runs the worker loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Snapshot worker started. Waiting for jobs...")

	for {
		// Wait for job (Blocking call to Redis)
		id, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Snapshot worker shutting down")
				return
			}
			w.logger.Error("Queue error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		w.processJob(ctx, id)
	}
}

func (w *Worker) processJob(ctx context.Context, id string) {
	logger := w.logger.With(zap.String("job_id", id))
	logger.Info("Snapshot started")

	article, err := w.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Error("Job failed: Article not found")
		} else {
			logger.Error("Job failed: store error", zap.Error(err))
		}
		metrics.RecordSnapshot("missing")
		return
	}

	// A late re-triage may have moved it out of the lab.
	if article.TriageStatus != model.StatusAcceptedForLab {
		logger.Info("Skipping snapshot", zap.String("status", string(article.TriageStatus)))
		metrics.RecordSnapshot("skipped")
		return
	}

	target := article.SnapshotURL()
	logger.Info("Downloading", zap.String("url", target))

	snap, err := w.scraper.Scrape(ctx, target)
	if err != nil {
		logger.Error("Scraping failed", zap.Error(err))
		w.failJob(ctx, id, err.Error())
		return
	}

	// Only snapshot fields are written; a re-triage during the download wins.
	err = w.store.SaveSnapshot(ctx, id, store.SnapshotUpdate{
		Title:      snap.Title,
		DOI:        snap.DOI,
		Excerpt:    snap.Excerpt,
		Content:    snap.Content,
		SnapshotAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to save snapshot", zap.Error(err))
		metrics.RecordSnapshot("error")
		return
	}

	metrics.RecordSnapshot("ok")
	logger.Info("Snapshot complete", zap.String("doi", snap.DOI))
}

func (w *Worker) failJob(ctx context.Context, id, msg string) {
	metrics.RecordSnapshot("failed")
	if err := w.store.RecordSnapshotError(ctx, id, msg); err != nil {
		w.logger.Error("Failed to record snapshot error", zap.String("id", id), zap.Error(err))
	}
}
