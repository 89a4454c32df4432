package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vitalsup/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// HybridStore keeps article metadata and the status index in Redis and
// snapshot content in Badger.
type HybridStore struct {
	rdb *redis.Client
	db  *badger.DB
}

var _ Store = (*HybridStore)(nil)

// NewHybridStore wraps an open Redis client and opens Badger.
// Pass badgerPath="" to run in "Redis-Only" mode (for CLI tools).
func NewHybridStore(rdb *redis.Client, badgerPath string) (*HybridStore, error) {
	var db *badger.DB
	var err error

	if badgerPath != "" {
		opts := badger.DefaultOptions(badgerPath)
		opts.Logger = nil // Silence default logger
		db, err = badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	return &HybridStore{rdb: rdb, db: db}, nil
}

// Close cleans up connections
func (s *HybridStore) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func articleKey(id string) string {
	return "article:" + id
}

func statusKey(status model.TriageStatus) string {
	return "triage:" + string(status)
}

// Save writes metadata to Redis and moves the article into the index of
// its current status. Content, if any, goes to Badger.
func (s *HybridStore) Save(ctx context.Context, article *model.Article) error {
	if article.Content != "" && s.db == nil {
		return fmt.Errorf("cannot save content: badgerdb is not initialized")
	}

	meta := *article
	meta.Content = ""

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, articleKey(article.ID), data, 0)
		index(ctx, pipe, article)
		return nil
	})
	if err != nil {
		return err
	}

	if article.Content != "" {
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(article.ID), []byte(article.Content))
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// index moves the article into the sorted set of its current status.
func index(ctx context.Context, pipe redis.Pipeliner, article *model.Article) {
	for _, st := range model.TriageStatuses {
		if st != article.TriageStatus {
			pipe.ZRem(ctx, statusKey(st), article.ID)
		}
	}
	pipe.ZAdd(ctx, statusKey(article.TriageStatus), redis.Z{
		Score:  float64(article.DiscoveredAt.UnixNano()),
		Member: article.ID,
	})
}

func (s *HybridStore) getMeta(ctx context.Context, id string) (*model.Article, error) {
	val, err := s.rdb.Get(ctx, articleKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var article model.Article
	if err := json.Unmarshal(val, &article); err != nil {
		return nil, err
	}
	return &article, nil
}

// Get combines data: Metadata from Redis + Content from Badger
func (s *HybridStore) Get(ctx context.Context, id string) (*model.Article, error) {
	article, err := s.getMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.db != nil {
		err = s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(id))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				article.Content = string(val)
				return nil
			})
		})

		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, err
		}
	}

	return article, nil
}

// ListByStatus returns metadata for articles in a status, oldest discovery first.
func (s *HybridStore) ListByStatus(ctx context.Context, status model.TriageStatus, limit int) ([]model.Article, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.ZRange(ctx, statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = articleKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	articles := make([]model.Article, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a model.Article
		if err := json.Unmarshal([]byte(raw), &a); err == nil {
			articles = append(articles, a)
		}
	}

	return articles, nil
}

const maxWatchRetries = 10

// updateMeta is an optimistic read-modify-write of one article's metadata.
// With reindex set, the status index is moved to the new status in the
// same transaction.
func (s *HybridStore) updateMeta(ctx context.Context, id string, reindex bool, apply func(*model.Article)) error {
	key := articleKey(id)
	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		var article model.Article
		if err := json.Unmarshal(val, &article); err != nil {
			return err
		}
		apply(&article)
		article.Content = ""

		data, err := json.Marshal(article)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if reindex {
				index(ctx, pipe, &article)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update article %s: %w", id, redis.TxFailedErr)
}

// UpdateTriage changes the triage decision only; content and snapshot
// fields are untouched.
func (s *HybridStore) UpdateTriage(ctx context.Context, id string, status model.TriageStatus, alternativeURL string) error {
	return s.updateMeta(ctx, id, true, func(a *model.Article) {
		a.TriageStatus = status
		switch {
		case status != model.StatusAcceptedForLab:
			a.AlternativeURL = ""
		case alternativeURL != "":
			a.AlternativeURL = alternativeURL
		}
		a.UpdatedAt = time.Now().UTC()
	})
}

// SaveSnapshot records a snapshot without touching the triage decision.
func (s *HybridStore) SaveSnapshot(ctx context.Context, id string, snap SnapshotUpdate) error {
	if snap.Content != "" && s.db == nil {
		return fmt.Errorf("cannot save content: badgerdb is not initialized")
	}

	err := s.updateMeta(ctx, id, false, func(a *model.Article) {
		if a.Title == "" {
			a.Title = snap.Title
		}
		if a.DOI == "" {
			a.DOI = snap.DOI
		}
		a.Excerpt = snap.Excerpt
		at := snap.SnapshotAt.UTC()
		a.SnapshotAt = &at
		a.SnapshotError = ""
	})
	if err != nil {
		return err
	}

	if snap.Content == "" {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), []byte(snap.Content))
	})
}

func (s *HybridStore) RecordSnapshotError(ctx context.Context, id string, msg string) error {
	return s.updateMeta(ctx, id, false, func(a *model.Article) {
		a.SnapshotError = msg
	})
}
