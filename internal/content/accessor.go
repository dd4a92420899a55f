// Package content defines the site's document kinds, their validation rules
// and the typed read accessors over a content store.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptySlug is returned by GetPost when called without a slug
var ErrEmptySlug = errors.New("slug is required")

// Fetcher executes a content query and decodes its JSON result into target.
// A [0] query with no match decodes JSON null.
type Fetcher interface {
	Fetch(ctx context.Context, q Query, target any) error
}

// Accessor provides one read function per document kind
type Accessor struct {
	fetcher Fetcher
}

// NewAccessor creates an accessor reading through f
func NewAccessor(f Fetcher) *Accessor {
	return &Accessor{fetcher: f}
}

// ListPosts returns all posts with a slug, newest first
func (a *Accessor) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := a.fetcher.Fetch(ctx, PostsQuery(), &posts); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPost returns the post whose slug matches exactly, or nil if none does
func (a *Accessor) GetPost(ctx context.Context, slug string) (*Post, error) {
	if slug == "" {
		return nil, ErrEmptySlug
	}

	var post *Post
	if err := a.fetcher.Fetch(ctx, PostBySlugQuery(slug), &post); err != nil {
		return nil, fmt.Errorf("get post %q: %w", slug, err)
	}
	return post, nil
}

// ListReviews returns all reviews, newest first
func (a *Accessor) ListReviews(ctx context.Context) ([]Review, error) {
	var reviews []Review
	if err := a.fetcher.Fetch(ctx, ReviewsQuery(), &reviews); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// ListShows returns all shows ordered by date ascending
func (a *Accessor) ListShows(ctx context.Context) ([]Show, error) {
	var shows []Show
	if err := a.fetcher.Fetch(ctx, ShowsQuery(), &shows); err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return shows, nil
}

// ListPodcasts returns all podcasts, newest first
func (a *Accessor) ListPodcasts(ctx context.Context) ([]Podcast, error) {
	var podcasts []Podcast
	if err := a.fetcher.Fetch(ctx, PodcastsQuery(), &podcasts); err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	return podcasts, nil
}

// ListSpecials returns all specials, newest first
func (a *Accessor) ListSpecials(ctx context.Context) ([]Special, error) {
	var specials []Special
	if err := a.fetcher.Fetch(ctx, SpecialsQuery(), &specials); err != nil {
		return nil, fmt.Errorf("list specials: %w", err)
	}
	return specials, nil
}

// ListKind returns the raw documents of a kind using that kind's list query
func (a *Accessor) ListKind(ctx context.Context, kind string) ([]json.RawMessage, error) {
	q, err := ListQuery(kind)
	if err != nil {
		return nil, err
	}

	var docs []json.RawMessage
	if err := a.fetcher.Fetch(ctx, q, &docs); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return docs, nil
}
