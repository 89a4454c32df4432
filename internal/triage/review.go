// Package triage holds the human review of discovered articles: the
// in-progress decisions of one reviewer and their final commit to storage.
package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vitalsup/internal/model"
)

type Disposition string

const (
	Accept    Disposition = "accept"
	Paywalled Disposition = "paywalled"
	Reject    Disposition = "reject"
)

var (
	ErrUnknownItem        = errors.New("article is not part of this review")
	ErrUnknownDisposition = errors.New("unknown disposition")
	ErrNotAccepted        = errors.New("alternative URL can only be set on accepted articles")
)

// ParseDisposition accepts the lowercase labels used by the review page.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(s); d {
	case Accept, Paywalled, Reject:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDisposition, s)
}

// Status is the storage status a disposition is committed as.
func (d Disposition) Status() model.TriageStatus {
	switch d {
	case Accept:
		return model.StatusAcceptedForLab
	case Paywalled:
		return model.StatusFlaggedPaywalled
	default:
		return model.StatusRejectedByHuman
	}
}

// ReviewItem is one candidate article as seen by the reviewer.
type ReviewItem struct {
	ID             string
	Title          string
	SourceURL      string
	Disposition    Disposition
	AlternativeURL string
}

// Lister is the read side of the article store used to load candidates.
type Lister interface {
	ListByStatus(ctx context.Context, status model.TriageStatus, limit int) ([]model.Article, error)
}

// Session is the working copy of one reviewer's decisions. At most one
// item has its alternative-URL editor open at a time.
type Session struct {
	mu      sync.Mutex
	items   []ReviewItem
	index   map[string]int
	editing string
}

// LoadSession fetches every article that passed the relevance check. Each
// starts out rejected so nothing moves on without an explicit decision.
func LoadSession(ctx context.Context, lister Lister) (*Session, error) {
	articles, err := lister.ListByStatus(ctx, model.StatusPassedRelevance, 0)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return NewSession(articles), nil
}

func NewSession(articles []model.Article) *Session {
	s := &Session{
		items: make([]ReviewItem, len(articles)),
		index: make(map[string]int, len(articles)),
	}
	for i, a := range articles {
		s.items[i] = ReviewItem{
			ID:          a.ID,
			Title:       a.Title,
			SourceURL:   a.SourceURL,
			Disposition: Reject,
		}
		s.index[a.ID] = i
	}
	return s
}

// Items returns a copy of the review list in load order.
func (s *Session) Items() []ReviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReviewItem(nil), s.items...)
}

// Editing returns the id whose alternative-URL editor is open, or "".
func (s *Session) Editing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

func (s *Session) item(id string) (*ReviewItem, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return &s.items[i], nil
}

// SetDisposition records a decision. Leaving accept drops the alternative
// URL and closes its editor.
func (s *Session) SetDisposition(id string, d Disposition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.item(id)
	if err != nil {
		return err
	}
	it.Disposition = d
	if d != Accept {
		it.AlternativeURL = ""
		if s.editing == id {
			s.editing = ""
		}
	}
	return nil
}

// SetAlternativeURL stores free text; the browser's url input is the only check.
func (s *Session) SetAlternativeURL(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.item(id)
	if err != nil {
		return err
	}
	if it.Disposition != Accept {
		return ErrNotAccepted
	}
	it.AlternativeURL = url
	return nil
}

// ToggleEdit opens the editor for id, or closes it if it is already open.
func (s *Session) ToggleEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.item(id)
	if err != nil {
		return err
	}
	if s.editing == id {
		s.editing = ""
		return nil
	}
	if it.Disposition != Accept {
		return ErrNotAccepted
	}
	s.editing = id
	return nil
}

// Updates builds the finalize payload, one entry per item in order.
func (s *Session) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := make([]Update, len(s.items))
	for i, it := range s.items {
		updates[i] = Update{ID: it.ID, Status: it.Disposition.Status()}
		if it.Disposition == Accept && it.AlternativeURL != "" {
			updates[i].AlternativeURL = it.AlternativeURL
		}
	}
	return updates
}
