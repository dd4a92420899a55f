package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standupsite/site/internal/content"
)

type countingFetcher struct{ calls int }

func (c *countingFetcher) Fetch(_ context.Context, _ content.Query, target any) error {
	c.calls++
	return nil
}

func TestNewWithoutClientPassesThrough(t *testing.T) {
	next := &countingFetcher{}

	f := New(next, nil, Options{})
	assert.Same(t, next, f)

	require.NoError(t, f.Fetch(context.Background(), content.ShowsQuery(), nil))
	assert.Equal(t, 1, next.calls)
}

func TestNewClientWithoutAddr(t *testing.T) {
	assert.Nil(t, NewClient("", "", 0))
}

func TestKeyIsNamespacedByKind(t *testing.T) {
	k := Key("content", content.ReviewsQuery())
	assert.True(t, strings.HasPrefix(k, "content:review:"), k)

	assert.Equal(t, k, Key("content", content.ReviewsQuery()))
	assert.NotEqual(t, Key("content", content.PostBySlugQuery("a")), Key("content", content.PostBySlugQuery("b")))
	assert.NotEqual(t, Key("content", content.PostsQuery()), Key("content", content.PostBySlugQuery("a")))
}

func TestNewFetcherDefaults(t *testing.T) {
	f := NewFetcher(&countingFetcher{}, nil, Options{})
	assert.Equal(t, "content", f.prefix)
	assert.Positive(t, f.ttl)
}

// upstream answers list queries with body and counts calls
type upstream struct {
	calls int
	body  string
}

func (u *upstream) Fetch(_ context.Context, _ content.Query, target any) error {
	u.calls++
	return json.Unmarshal([]byte(u.body), target)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestFetchServesRepeatFromCache(t *testing.T) {
	mr, rdb := newMiniredis(t)
	next := &upstream{body: `[{"_id":"s1","_type":"show","date":"2026-03-01","location":"Cellar"}]`}
	f := NewFetcher(next, rdb, Options{TTL: 30 * time.Second})
	accessor := content.NewAccessor(f)

	for range 2 {
		shows, err := accessor.ListShows(context.Background())
		require.NoError(t, err)
		require.Len(t, shows, 1)
		assert.Equal(t, "Cellar", shows[0].Location)
	}
	assert.Equal(t, 1, next.calls)

	key := Key("content", content.ShowsQuery())
	require.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	mr.FastForward(31 * time.Second)
	_, err := accessor.ListShows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestFetchCachesAbsentPost(t *testing.T) {
	mr, rdb := newMiniredis(t)
	next := &upstream{body: "null"}
	accessor := content.NewAccessor(NewFetcher(next, rdb, Options{}))

	for range 2 {
		post, err := accessor.GetPost(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, post)
	}
	assert.Equal(t, 1, next.calls)

	cached, err := mr.Get(Key("content", content.PostBySlugQuery("missing")))
	require.NoError(t, err)
	assert.Equal(t, "null", cached)
}

func TestFetchRefetchesUndecodableEntry(t *testing.T) {
	mr, rdb := newMiniredis(t)
	next := &upstream{body: `[]`}
	f := NewFetcher(next, rdb, Options{})

	require.NoError(t, mr.Set(Key("content", content.PodcastsQuery()), "{broken"))

	podcasts, err := content.NewAccessor(f).ListPodcasts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, podcasts)
	assert.Equal(t, 1, next.calls)
}

func TestFetchUpstreamErrorNotCached(t *testing.T) {
	mr, rdb := newMiniredis(t)
	f := NewFetcher(failingFetcher{}, rdb, Options{})

	_, err := content.NewAccessor(f).ListReviews(context.Background())
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, content.Query, any) error {
	return errors.New("upstream unavailable")
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	seed := func(t *testing.T) (*miniredis.Miniredis, *Fetcher) {
		mr, rdb := newMiniredis(t)
		f := NewFetcher(&upstream{body: `[]`}, rdb, Options{})
		accessor := content.NewAccessor(f)
		_, err := accessor.ListShows(ctx)
		require.NoError(t, err)
		_, err = accessor.ListPosts(ctx)
		require.NoError(t, err)
		require.Len(t, mr.Keys(), 2)
		return mr, f
	}

	t.Run("one kind", func(t *testing.T) {
		mr, f := seed(t)
		require.NoError(t, f.Invalidate(ctx, content.KindShow))

		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.True(t, strings.HasPrefix(keys[0], "content:post:"), keys[0])
	})

	t.Run("empty type purges all", func(t *testing.T) {
		mr, f := seed(t)
		require.NoError(t, f.Invalidate(ctx, ""))
		assert.Empty(t, mr.Keys())
	})

	t.Run("unknown type purges all", func(t *testing.T) {
		mr, f := seed(t)
		require.NoError(t, f.Invalidate(ctx, "sanity.imageAsset"))
		assert.Empty(t, mr.Keys())
	})

	t.Run("nothing cached", func(t *testing.T) {
		_, rdb := newMiniredis(t)
		assert.NoError(t, NewFetcher(&upstream{}, rdb, Options{}).Invalidate(ctx, content.KindPost))
	})
}

func TestNewClientPings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := NewClient(mr.Addr(), "", 0)
	require.NotNil(t, rdb)
	rdb.Close()

	mr.Close()
	assert.Nil(t, NewClient(mr.Addr(), "", 0))
}
