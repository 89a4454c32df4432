package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"vitalsup/internal/model"
	"vitalsup/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockScraper struct {
	MockTitle   string
	MockContent string
	MockDOI     string
	ShouldFail  bool
	Requested   []string
	// During runs while the page is being "downloaded".
	During func()
}

// Scrape simulates article scraping
func (m *MockScraper) Scrape(ctx context.Context, url string) (*Snapshot, error) {
	m.Requested = append(m.Requested, url)
	if m.During != nil {
		m.During()
	}
	if m.ShouldFail {
		return nil, fmt.Errorf("simulated 404 error")
	}
	return &Snapshot{
		Title:   m.MockTitle,
		Content: m.MockContent,
		Excerpt: "A short summary",
		DOI:     m.MockDOI,
	}, nil
}

func setup(t *testing.T) (*store.HybridStore, *store.RedisQueue) {
	t.Helper()

	// Spin up fake Redis
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb, err := store.OpenRedis(context.Background(), mr.Addr())
	require.NoError(t, err)

	// Real store wired to fake Redis + temp Badger
	st, err := store.NewHybridStore(rdb, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(st.Close)

	return st, store.NewRedisQueue(rdb)
}

func acceptedArticle(t *testing.T, st store.Store, altURL string) model.Article {
	t.Helper()
	article := model.NewArticle("", "http://fake-url.com/article")
	article.TriageStatus = model.StatusAcceptedForLab
	article.AlternativeURL = altURL
	require.NoError(t, st.Save(context.Background(), &article))
	return article
}

func runBriefly(w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	// Give it time to process the queued jobs
	time.Sleep(100 * time.Millisecond)
	cancel()
}

// TestWorker_ProcessJob tests that the worker snapshots an accepted article
// from its alternative URL
func TestWorker_ProcessJob(t *testing.T) {
	st, q := setup(t)

	w := NewWorker(st, q, zap.NewNop())
	scraper := &MockScraper{
		MockTitle:   "Mocked Title",
		MockContent: "<p>This is fake content</p>",
		MockDOI:     "10.1000/mock",
	}
	w.scraper = scraper

	article := acceptedArticle(t, st, "http://alt-url.com/free-copy")
	require.NoError(t, q.Push(context.Background(), article.ID))

	runBriefly(w)

	updated, err := st.Get(context.Background(), article.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://alt-url.com/free-copy"}, scraper.Requested)
	assert.Equal(t, model.StatusAcceptedForLab, updated.TriageStatus)
	assert.Equal(t, "Mocked Title", updated.Title)
	assert.Equal(t, "<p>This is fake content</p>", updated.Content)
	assert.Equal(t, "10.1000/mock", updated.DOI)
	assert.NotNil(t, updated.SnapshotAt)
	assert.Empty(t, updated.SnapshotError)
}

// TestWorker_HandlesScrapeFailure tests that a scraping failure is recorded
// on the article without touching its triage status
func TestWorker_HandlesScrapeFailure(t *testing.T) {
	st, q := setup(t)

	w := NewWorker(st, q, zap.NewNop())
	w.scraper = &MockScraper{ShouldFail: true}

	article := acceptedArticle(t, st, "")
	require.NoError(t, q.Push(context.Background(), article.ID))

	runBriefly(w)

	saved, err := st.Get(context.Background(), article.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusAcceptedForLab, saved.TriageStatus)
	assert.Equal(t, "simulated 404 error", saved.SnapshotError)
	assert.Nil(t, saved.SnapshotAt)
}

func TestWorker_SkipsArticlesNoLongerInLab(t *testing.T) {
	st, q := setup(t)

	w := NewWorker(st, q, zap.NewNop())
	scraper := &MockScraper{MockTitle: "unused"}
	w.scraper = scraper

	article := model.NewArticle("Rejected later", "http://fake-url.com/x")
	article.TriageStatus = model.StatusRejectedByHuman
	require.NoError(t, st.Save(context.Background(), &article))
	require.NoError(t, q.Push(context.Background(), article.ID))
	require.NoError(t, q.Push(context.Background(), "unknown-id"))

	runBriefly(w)

	assert.Empty(t, scraper.Requested)
}

func TestWorker_RetriageDuringDownloadWins(t *testing.T) {
	for _, fail := range []bool{false, true} {
		st, q := setup(t)
		ctx := context.Background()

		w := NewWorker(st, q, zap.NewNop())
		article := acceptedArticle(t, st, "http://alt-url.com/free-copy")
		w.scraper = &MockScraper{
			MockTitle:   "Mocked Title",
			MockContent: "<p>late content</p>",
			ShouldFail:  fail,
			During: func() {
				require.NoError(t, st.UpdateTriage(ctx, article.ID, model.StatusRejectedByHuman, ""))
			},
		}

		w.processJob(ctx, article.ID)

		got, err := st.Get(ctx, article.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRejectedByHuman, got.TriageStatus)
		assert.Empty(t, got.AlternativeURL)

		rejected, err := st.ListByStatus(ctx, model.StatusRejectedByHuman, 0)
		require.NoError(t, err)
		assert.Len(t, rejected, 1)
		accepted, err := st.ListByStatus(ctx, model.StatusAcceptedForLab, 0)
		require.NoError(t, err)
		assert.Empty(t, accepted)

		if fail {
			assert.Equal(t, "simulated 404 error", got.SnapshotError)
		} else {
			assert.Equal(t, "<p>late content</p>", got.Content)
			assert.NotNil(t, got.SnapshotAt)
		}
	}
}
