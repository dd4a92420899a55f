package search

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/storage"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestFromDocument(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		raw       string
		wantTitle string
		wantURL   string
		wantText  string
	}{
		{
			name:      "post",
			kind:      content.KindPost,
			raw:       `{"_id":"p1","title":"Road notes","slug":{"current":"road-notes"},"excerpt":"Tour diary","body":[{"_type":"block","children":[{"_type":"span","text":"Ohio was cold"}]}]}`,
			wantTitle: "Road notes",
			wantURL:   "/posts/road-notes",
			wantText:  "Tour diary\nOhio was cold",
		},
		{
			name:      "show",
			kind:      content.KindShow,
			raw:       `{"_id":"s1","date":"2026-05-01","location":"The Bell House","link":"https://tix.example/1","description":"Late show"}`,
			wantTitle: "The Bell House",
			wantURL:   "https://tix.example/1",
			wantText:  "2026-05-01\nLate show",
		},
		{
			name:      "special",
			kind:      content.KindSpecial,
			raw:       `{"_id":"sp1","title":"Hour One","youtubeId":"dQw4w9WgXcQ","details":"Filmed in Austin"}`,
			wantTitle: "Hour One",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantText:  "Filmed in Austin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := FromDocument(tt.kind, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, doc.Type)
			assert.Equal(t, tt.wantTitle, doc.Title)
			assert.Equal(t, tt.wantURL, doc.URL)
			assert.Equal(t, tt.wantText, doc.Content)
		})
	}

	_, err := FromDocument("sketch", json.RawMessage(`{"_id":"x"}`))
	assert.Error(t, err)
}

func TestIndexAndSearch(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.IndexDocument(&IndexedDocument{ID: "r1", Type: "review", Title: "Gut-busting", Content: "The funniest hour of the festival"}))
	require.NoError(t, idx.IndexDocument(&IndexedDocument{ID: "r2", Type: "review", Title: "Solid", Content: "A good night of jokes"}))

	results, err := idx.Search("festival", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].ID)
	assert.Equal(t, "review", results[0].Type)
	assert.Equal(t, "Gut-busting", results[0].Title)

	require.NoError(t, idx.Delete("r1"))
	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRebuildFromMirror(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, raw := range []string{
		`{"_id":"pc1","_type":"podcast","_createdAt":"2026-01-01T00:00:00Z","title":"Crowd Work","description":"Weekly chats"}`,
		`{"_id":"pc2","_type":"podcast","_createdAt":"2026-01-02T00:00:00Z","title":"Green Room","description":"Backstage stories"}`,
	} {
		doc, err := storage.NewDocument(json.RawMessage(raw))
		require.NoError(t, err)
		doc.SyncedAt = time.Now()
		require.NoError(t, db.Upsert(doc))
	}

	idx := openTestIndex(t)
	var calls int
	require.NoError(t, idx.Rebuild(db, func(current, total int) {
		calls++
		assert.Equal(t, 2, total)
	}))
	assert.Equal(t, 1, calls)

	results, err := idx.Search("backstage", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pc2", results[0].ID)
}
