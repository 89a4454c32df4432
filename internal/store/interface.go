package store

import (
	"context"
	"errors"
	"time"

	"vitalsup/internal/model"
)

var (
	ErrNotFound = errors.New("article not found")
)

type Store interface {
	Save(ctx context.Context, article *model.Article) error
	Get(ctx context.Context, id string) (*model.Article, error)
	ListByStatus(ctx context.Context, status model.TriageStatus, limit int) ([]model.Article, error)
	// UpdateTriage sets the triage status of one article. Any status other
	// than accepted_for_lab clears the alternative URL; an accept with an
	// empty alternativeURL keeps the stored one.
	UpdateTriage(ctx context.Context, id string, status model.TriageStatus, alternativeURL string) error
	// SaveSnapshot writes the snapshot fields only. Triage status,
	// alternative URL and the status index are left alone.
	SaveSnapshot(ctx context.Context, id string, snap SnapshotUpdate) error
	// RecordSnapshotError stores why the last snapshot attempt failed.
	RecordSnapshotError(ctx context.Context, id string, msg string) error
	Close()
}

// SnapshotUpdate is the result of one successful lab snapshot. Title and
// DOI only fill values that are still empty.
type SnapshotUpdate struct {
	Title      string
	DOI        string
	Excerpt    string
	Content    string
	SnapshotAt time.Time
}

// Queue carries article ids waiting for a lab snapshot.
type Queue interface {
	Push(ctx context.Context, id string) error
	Pop(ctx context.Context) (string, error)
}
