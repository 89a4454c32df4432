package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"vitalsup/internal/metrics"
	"vitalsup/internal/model"

	"go.uber.org/zap"
)

var ErrInvalidUpdates = errors.New("updates must be an array")

// Update is one decision as submitted for finalization.
type Update struct {
	ID             string             `json:"id"`
	Status         model.TriageStatus `json:"status"`
	AlternativeURL string             `json:"alternativeUrl,omitempty"`
}

type EntryKind int

const (
	Valid EntryKind = iota
	Skipped
	Fatal
)

func (k EntryKind) String() string {
	switch k {
	case Valid:
		return "valid"
	case Skipped:
		return "skipped"
	default:
		return "fatal"
	}
}

// Entry is the validation verdict for one submitted update.
type Entry struct {
	Kind   EntryKind
	Index  int
	Update Update
	Reason string
}

// PlanError rejects a whole submission because of one malformed update.
type PlanError struct {
	Index  int
	ID     string
	Reason string
}

func (e *PlanError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid update for article %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("invalid update at position %d: %s", e.Index, e.Reason)
}

// ItemError is the write failure that stopped a finalization.
type ItemError struct {
	ID  string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("update article %s: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Classify applies the skip policy: updates without an id or status are
// skipped, anything that cannot be written as a human triage decision is fatal.
func Classify(index int, u Update) Entry {
	e := Entry{Index: index, Update: u}
	switch {
	case u.ID == "":
		e.Kind, e.Reason = Skipped, "missing id"
	case u.Status == "":
		e.Kind, e.Reason = Skipped, "missing status"
	case !u.Status.Final():
		e.Kind, e.Reason = Fatal, fmt.Sprintf("unknown triage status %q", u.Status)
	default:
		e.Kind = Valid
		if u.Status != model.StatusAcceptedForLab {
			e.Update.AlternativeURL = ""
		}
	}
	return e
}

// Plan validates the raw "updates" value of a finalize request. Nothing is
// written unless every entry is Valid or Skipped.
func Plan(raw json.RawMessage) ([]Entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrInvalidUpdates
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, ErrInvalidUpdates
	}

	entries := make([]Entry, 0, len(elems))
	for i, elem := range elems {
		u, err := decodeUpdate(elem)
		if err != nil {
			return nil, &PlanError{Index: i, ID: u.ID, Reason: err.Error()}
		}
		e := Classify(i, u)
		if e.Kind == Fatal {
			return nil, &PlanError{Index: i, ID: u.ID, Reason: e.Reason}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// PlanUpdates classifies updates built in-process by a review session.
func PlanUpdates(updates []Update) ([]Entry, error) {
	entries := make([]Entry, 0, len(updates))
	for i, u := range updates {
		e := Classify(i, u)
		if e.Kind == Fatal {
			return nil, &PlanError{Index: i, ID: u.ID, Reason: e.Reason}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeUpdate(raw json.RawMessage) (Update, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Update{}, errors.New("update must be an object")
	}

	var u Update
	id, err := stringField(fields, "id")
	if err != nil {
		return u, err
	}
	u.ID = id
	status, err := stringField(fields, "status")
	if err != nil {
		return u, err
	}
	u.Status = model.TriageStatus(status)
	if u.AlternativeURL, err = stringField(fields, "alternativeUrl"); err != nil {
		return u, err
	}
	return u, nil
}

// stringField treats a missing key and JSON null alike.
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// Updater writes one triage decision.
type Updater interface {
	UpdateTriage(ctx context.Context, id string, status model.TriageStatus, alternativeURL string) error
}

// Enqueuer schedules a lab snapshot for an accepted article.
type Enqueuer interface {
	Push(ctx context.Context, id string) error
}

// Report summarises a successful finalization.
type Report struct {
	Applied int
	Skipped int
}

// Finalizer commits triage decisions one row at a time, in order.
type Finalizer struct {
	store  Updater
	queue  Enqueuer
	logger *zap.Logger
}

// NewFinalizer builds a Finalizer; queue may be nil when snapshots are disabled.
func NewFinalizer(store Updater, queue Enqueuer, logger *zap.Logger) *Finalizer {
	return &Finalizer{
		store:  store,
		queue:  queue,
		logger: logger,
	}
}

// Finalize writes every Valid entry serially. The first failed write stops
// the loop with an *ItemError; rows written before it stay written.
func (f *Finalizer) Finalize(ctx context.Context, entries []Entry) (Report, error) {
	var rep Report
	for _, e := range entries {
		if e.Kind == Skipped {
			f.logger.Debug("Skipping triage update",
				zap.Int("index", e.Index),
				zap.String("id", e.Update.ID),
				zap.String("reason", e.Reason))
			rep.Skipped++
			continue
		}
		if e.Kind != Valid {
			return rep, &PlanError{Index: e.Index, ID: e.Update.ID, Reason: e.Reason}
		}

		u := e.Update
		if err := f.store.UpdateTriage(ctx, u.ID, u.Status, u.AlternativeURL); err != nil {
			metrics.RecordTriageUpdate(string(u.Status), "error")
			f.logger.Error("Triage update failed",
				zap.String("id", u.ID),
				zap.String("status", string(u.Status)),
				zap.Int("applied", rep.Applied),
				zap.Error(err))
			return rep, &ItemError{ID: u.ID, Err: err}
		}
		metrics.RecordTriageUpdate(string(u.Status), "ok")
		rep.Applied++

		if u.Status == model.StatusAcceptedForLab && f.queue != nil {
			if err := f.queue.Push(ctx, u.ID); err != nil {
				f.logger.Warn("Failed to queue lab snapshot", zap.String("id", u.ID), zap.Error(err))
			}
		}
	}

	f.logger.Info("Triage finalized", zap.Int("applied", rep.Applied), zap.Int("skipped", rep.Skipped))
	return rep, nil
}
