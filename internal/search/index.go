package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/storage"
)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedDocument represents a document in the search index
type IndexedDocument struct {
	ID      string
	Type    string
	Title   string
	Content string
	URL     string
}

// SearchResult represents a search result
type SearchResult struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	URL       string              `json:"url"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"` // Highlighted snippets
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// buildIndexMapping creates the index mapping; titles get the English analyzer
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("URL", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexDocument adds or updates a document in the index
func (i *Index) IndexDocument(doc *IndexedDocument) error {
	return i.index.Index(doc.ID, doc)
}

// Delete removes a document from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Search runs a query-string search (quotes, +/-, fuzzy ~) with highlighting
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"Type", "Title", "URL"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if t, ok := hit.Fields["Type"].(string); ok {
			result.Type = t
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if url, ok := hit.Fields["URL"].(string); ok {
			result.URL = url
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Rebuild indexes every mirrored document, reporting progress after each batch
func (i *Index) Rebuild(db *storage.DB, progress func(current, total int)) error {
	docs, err := db.List("")
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	const batchSize = 100
	batch := i.index.NewBatch()
	for n, doc := range docs {
		indexDoc, err := FromDocument(doc.Type, json.RawMessage(doc.Body))
		if err != nil {
			return fmt.Errorf("convert %s: %w", doc.ID, err)
		}

		if err := batch.Index(indexDoc.ID, indexDoc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}

		if batch.Size() >= batchSize || n == len(docs)-1 {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
			if progress != nil {
				progress(n+1, len(docs))
			}
		}
	}

	return nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// FromDocument derives the searchable fields of a raw document
func FromDocument(kind string, raw json.RawMessage) (*IndexedDocument, error) {
	var meta content.Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	doc := &IndexedDocument{ID: meta.ID, Type: kind}

	switch kind {
	case content.KindPost:
		var p content.Post
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		doc.Title = p.Title
		doc.Content = joinNonEmpty(p.Excerpt, content.PlainText(p.Body))
		if p.Slug.Current != "" {
			doc.URL = "/posts/" + p.Slug.Current
		}
	case content.KindReview:
		var r content.Review
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		doc.Title = r.Title
		doc.Content = content.PlainText(r.Text)
	case content.KindShow:
		var s content.Show
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		doc.Title = s.Location
		doc.Content = joinNonEmpty(s.Date, s.Description)
		doc.URL = s.Link
	case content.KindPodcast:
		var p content.Podcast
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		doc.Title = p.Title
		doc.Content = p.Description
	case content.KindSpecial:
		var s content.Special
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		doc.Title = s.Title
		doc.Content = joinNonEmpty(content.PlainText(s.Description), s.Details)
		if s.YoutubeID != "" {
			doc.URL = s.WatchURL()
		}
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}

	return doc, nil
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
