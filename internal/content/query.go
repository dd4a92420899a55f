package content

import (
	"fmt"
	"strings"
)

// Order fields understood by every fetcher
const (
	OrderCreatedAt = "_createdAt"
	OrderDate      = "date"
)

// Order describes a single sort key
type Order struct {
	Field string
	Desc  bool
}

// Query is one of the fixed content queries. It renders to GROQ for the
// remote store and is evaluated structurally by the local mirror.
type Query struct {
	Type        string
	RequireSlug bool   // defined(slug.current)
	Slug        string // slug.current == $slug, bound as a parameter
	Order       *Order
	First       bool // [0]
}

// GROQ renders the query string. Runtime values never appear in it; they are
// returned by Params and bound by the fetcher.
func (q Query) GROQ() string {
	filters := []string{fmt.Sprintf("_type == %q", q.Type)}
	if q.RequireSlug {
		filters = append(filters, "defined(slug.current)")
	}
	if q.Slug != "" {
		filters = append(filters, "slug.current == $slug")
	}

	var sb strings.Builder
	sb.WriteString("*[")
	sb.WriteString(strings.Join(filters, " && "))
	sb.WriteString("]")

	if q.First {
		sb.WriteString("[0]")
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&sb, " | order(%s %s)", q.Order.Field, dir)
	}
	return sb.String()
}

// Params returns the parameters bound to the query
func (q Query) Params() map[string]any {
	if q.Slug == "" {
		return nil
	}
	return map[string]any{"slug": q.Slug}
}

func newestFirst() *Order { return &Order{Field: OrderCreatedAt, Desc: true} }

// PostsQuery lists posts having a slug, newest first
func PostsQuery() Query {
	return Query{Type: KindPost, RequireSlug: true, Order: newestFirst()}
}

// PostBySlugQuery selects the post with the given slug
func PostBySlugQuery(slug string) Query {
	return Query{Type: KindPost, Slug: slug, First: true}
}

// ReviewsQuery lists reviews, newest first
func ReviewsQuery() Query {
	return Query{Type: KindReview, Order: newestFirst()}
}

// ShowsQuery lists shows in date order
func ShowsQuery() Query {
	return Query{Type: KindShow, Order: &Order{Field: OrderDate}}
}

// PodcastsQuery lists podcasts, newest first
func PodcastsQuery() Query {
	return Query{Type: KindPodcast, Order: newestFirst()}
}

// SpecialsQuery lists specials, newest first
func SpecialsQuery() Query {
	return Query{Type: KindSpecial, Order: newestFirst()}
}

// ListQuery returns the list query for a document kind
func ListQuery(kind string) (Query, error) {
	switch kind {
	case KindPost:
		return PostsQuery(), nil
	case KindReview:
		return ReviewsQuery(), nil
	case KindShow:
		return ShowsQuery(), nil
	case KindPodcast:
		return PodcastsQuery(), nil
	case KindSpecial:
		return SpecialsQuery(), nil
	default:
		return Query{}, fmt.Errorf("unknown document kind %q", kind)
	}
}
