package web

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vitalsup/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// browser drives the pages through a real listener with a cookie jar so
// the review session carries across requests.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, env *testEnv) *browser {
	t.Helper()
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: ts.URL, client: &http.Client{Jar: jar}}
}

func (b *browser) get(path string) (int, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.base + path)
	require.NoError(b.t, err)
	return readPage(b.t, resp)
}

func (b *browser) post(path string, form url.Values) (int, string) {
	b.t.Helper()
	resp, err := b.client.PostForm(b.base+path, form)
	require.NoError(b.t, err)
	return readPage(b.t, resp)
}

func readPage(t *testing.T, resp *http.Response) (int, string) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTriagePage_ReviewAndFinalize(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed(t, "a1", "b2", "c3")
	b := newBrowser(t, env)

	code, page := b.get("/triage")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, "Article a1")
	assert.Contains(t, page, "Article c3")
	assert.Less(t, strings.Index(page, "Article a1"), strings.Index(page, "Article b2"))

	code, _ = b.post("/triage/a1/disposition", url.Values{"disposition": {"accept"}})
	require.Equal(t, http.StatusOK, code)
	code, page = b.post("/triage/a1/edit", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, `name="url"`)

	code, page = b.post("/triage/a1/alternative-url", url.Values{"url": {"https://alt.example.com/a1"}, "close": {"1"}})
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, page, `name="url"`)
	assert.Contains(t, page, "https://alt.example.com/a1")

	code, _ = b.post("/triage/b2/disposition", url.Values{"disposition": {"paywalled"}})
	require.Equal(t, http.StatusOK, code)

	code, page = b.post("/triage/finalize", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, msgFinalized)
	assert.NotContains(t, page, "Article a1")
	assert.Contains(t, page, "No articles are waiting for review.")

	a1 := env.article(t, "a1")
	assert.Equal(t, model.StatusAcceptedForLab, a1.TriageStatus)
	assert.Equal(t, "https://alt.example.com/a1", a1.AlternativeURL)
	assert.Equal(t, model.StatusFlaggedPaywalled, env.article(t, "b2").TriageStatus)
	assert.Equal(t, model.StatusRejectedByHuman, env.article(t, "c3").TriageStatus)

	// The flash is shown once.
	_, page = b.get("/triage")
	assert.NotContains(t, page, msgFinalized)
}

func TestTriagePage_LeavingAcceptDropsAlternativeURL(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed(t, "a1")
	b := newBrowser(t, env)

	b.get("/triage")
	b.post("/triage/a1/disposition", url.Values{"disposition": {"accept"}})
	b.post("/triage/a1/edit", nil)
	b.post("/triage/a1/alternative-url", url.Values{"url": {"https://alt.example.com/a1"}})

	_, page := b.post("/triage/a1/disposition", url.Values{"disposition": {"reject"}})
	assert.NotContains(t, page, "https://alt.example.com/a1")
	assert.NotContains(t, page, `name="url"`)

	code, _ := b.post("/triage/a1/alternative-url", url.Values{"url": {"https://alt.example.com/a1"}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTriagePage_BadActions(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed(t, "a1")
	b := newBrowser(t, env)
	b.get("/triage")

	code, page := b.post("/triage/a1/disposition", url.Values{"disposition": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, page, "unknown disposition")

	code, _ = b.post("/triage/zz/edit", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTriagePage_FinalizeFailureKeepsDecisions(t *testing.T) {
	upd := &failingUpdater{failID: "a1", err: assert.AnError}
	env := newTestEnv(t, nil, upd)
	upd.next = env.store
	env.seed(t, "a1")
	b := newBrowser(t, env)

	b.get("/triage")
	b.post("/triage/a1/disposition", url.Values{"disposition": {"paywalled"}})

	code, page := b.post("/triage/finalize", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, page, msgFinalizeFailed)
	assert.Contains(t, page, "Failed to update article a1")
	assert.Contains(t, page, "Article a1")
	assert.Equal(t, model.StatusPassedRelevance, env.article(t, "a1").TriageStatus)
}

func TestTriagePage_LoadFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.mr.Close()

	rec := env.do(httptest.NewRequest(http.MethodGet, "/triage", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), msgLoadFailed)
	assert.NotContains(t, rec.Body.String(), "Finalize Reviews")
}

func TestTriagePage_ActionWithoutSessionReloads(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/triage/a1/edit", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/triage", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Result().Cookies())
}
