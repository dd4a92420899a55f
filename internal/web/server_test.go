package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/search"
	"github.com/standupsite/site/internal/storage"
)

// memFetcher answers list queries with lists[q.Type] and slug lookups from posts
type memFetcher struct {
	lists map[string]string
	posts map[string]string
	err   error
}

func (m *memFetcher) Fetch(_ context.Context, q content.Query, target any) error {
	if m.err != nil {
		return m.err
	}
	if q.First {
		body, ok := m.posts[q.Slug]
		if !ok {
			body = "null"
		}
		return json.Unmarshal([]byte(body), target)
	}
	body, ok := m.lists[q.Type]
	if !ok {
		body = "[]"
	}
	return json.Unmarshal([]byte(body), target)
}

func newTestServer(f content.Fetcher) *httptest.Server {
	s := NewServer(Options{Accessor: content.NewAccessor(f)})
	return httptest.NewServer(s.Handler())
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestListEndpoints(t *testing.T) {
	f := &memFetcher{lists: map[string]string{
		content.KindShow:    `[{"_id":"s1","_type":"show","date":"2026-03-01","location":"Comedy Cellar","link":"https://tickets.example.com/s1"}]`,
		content.KindPodcast: `[{"_id":"pc1","_type":"podcast","title":"Crowd Work","description":"Weekly"}]`,
	}}
	ts := newTestServer(f)
	defer ts.Close()

	var shows []content.Show
	resp := getJSON(t, ts.URL+"/api/shows", &shows)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Len(t, shows, 1)
	assert.Equal(t, "Comedy Cellar", shows[0].Location)

	var podcasts []content.Podcast
	getJSON(t, ts.URL+"/api/podcasts", &podcasts)
	require.Len(t, podcasts, 1)
	assert.Equal(t, "Crowd Work", podcasts[0].Title)
}

func TestListEndpointEmptyIsArray(t *testing.T) {
	ts := newTestServer(&memFetcher{lists: map[string]string{content.KindSpecial: "null"}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/specials")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw))
}

func TestListEndpointUpstreamFailure(t *testing.T) {
	ts := newTestServer(&memFetcher{err: errors.New("connection refused")})
	defer ts.Close()

	var body errorResponse
	resp := getJSON(t, ts.URL+"/api/reviews", &body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotEmpty(t, body.Error)
}

func TestGetPost(t *testing.T) {
	f := &memFetcher{posts: map[string]string{
		"first-gig": `{"_id":"p1","_type":"post","title":"First gig","slug":{"current":"first-gig"}}`,
	}}
	ts := newTestServer(f)
	defer ts.Close()

	var post content.Post
	resp := getJSON(t, ts.URL+"/api/posts/first-gig", &post)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "p1", post.ID)
	assert.Equal(t, "first-gig", post.Slug.Current)

	var body errorResponse
	resp = getJSON(t, ts.URL+"/api/posts/nope", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "post not found", body.Error)
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(&memFetcher{})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/posts", nil)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/posts", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}

func TestRecovererReturnsJSON(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestSearchAndHealth(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "content.db"))
	require.NoError(t, err)
	defer db.Close()
	idx, err := search.Open(filepath.Join(dir, "bleve"))
	require.NoError(t, err)
	defer idx.Close()

	raw := json.RawMessage(`{"_id":"sp1","_type":"special","_createdAt":"2026-01-01T00:00:00Z","title":"Live at the Apollo","description":[{"_type":"block","children":[{"_type":"span","text":"An hour of crowd work"}]}],"youtubeId":"dQw4w9WgXcQ"}`)
	doc, err := storage.NewDocument(raw)
	require.NoError(t, err)
	require.NoError(t, db.Upsert(doc))
	indexed, err := search.FromDocument(content.KindSpecial, raw)
	require.NoError(t, err)
	require.NoError(t, idx.IndexDocument(indexed))

	s := NewServer(Options{Accessor: content.NewAccessor(db), DB: db, Index: idx})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var res searchResponse
	resp := getJSON(t, ts.URL+"/api/search?q=apollo&limit=500", &res)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "sp1", res.Results[0].ID)

	var errBody errorResponse
	resp = getJSON(t, ts.URL+"/api/search", &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var health map[string]any
	resp = getJSON(t, ts.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["documents_in_db"])
	assert.EqualValues(t, 1, health["documents_in_index"])
	assert.Equal(t, false, health["deploy_hook"])

	// The mirror also serves the list endpoints
	var specials []content.Special
	getJSON(t, ts.URL+"/api/specials", &specials)
	require.Len(t, specials, 1)
	assert.True(t, strings.HasSuffix(specials[0].WatchURL(), "dQw4w9WgXcQ"))
}

func TestSearchWithoutIndex(t *testing.T) {
	ts := newTestServer(&memFetcher{})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/search?q=x", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
