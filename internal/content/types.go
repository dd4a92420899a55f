package content

import "time"

// Document kinds stored in the content store
const (
	KindPost    = "post"
	KindReview  = "review"
	KindShow    = "show"
	KindPodcast = "podcast"
	KindSpecial = "special"
)

// Kinds lists every document kind the site reads
var Kinds = []string{KindPost, KindReview, KindShow, KindPodcast, KindSpecial}

// IsKind reports whether kind names a known document kind
func IsKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Meta holds the server-assigned fields present on every document
type Meta struct {
	ID        string    `json:"_id"`
	Type      string    `json:"_type"`
	Rev       string    `json:"_rev,omitempty"`
	CreatedAt time.Time `json:"_createdAt"`
	UpdatedAt time.Time `json:"_updatedAt"`
}

// Slug is a URL-safe identifier
type Slug struct {
	Current string `json:"current"`
}

// ImageRef points at an uploaded image asset
type ImageRef struct {
	Asset struct {
		Ref string `json:"_ref"`
	} `json:"asset"`
	Alt string `json:"alt,omitempty"`
}

// Post is a blog post
type Post struct {
	Meta
	Title     string    `json:"title,omitempty"`
	Slug      Slug      `json:"slug"`
	Excerpt   string    `json:"excerpt,omitempty"`
	MainImage *ImageRef `json:"mainImage,omitempty"`
	Body      []Block   `json:"body"`
}

// Review is a press or audience review shown on the review wall
type Review struct {
	Meta
	Title      string   `json:"title"`
	Text       []Block  `json:"text"`
	StarRating *float64 `json:"starRating,omitempty"`
}

// Stars returns the rating rounded down, or 0 when unrated
func (r Review) Stars() int {
	if r.StarRating == nil {
		return 0
	}
	return int(*r.StarRating)
}

// Show is a live performance listing
type Show struct {
	Meta
	Date        string `json:"date"` // YYYY-MM-DD
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link"`
	SoldOut     bool   `json:"soldOut"`
}

// ShowDateLayout is the wire format of Show.Date
const ShowDateLayout = "2006-01-02"

// Day parses the show date
func (s Show) Day() (time.Time, error) {
	return time.Parse(ShowDateLayout, s.Date)
}

// Podcast is a podcast the comedian hosts or appeared on
type Podcast struct {
	Meta
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Special is a recorded special hosted on YouTube
type Special struct {
	Meta
	Title       string  `json:"title"`
	Description []Block `json:"description"`
	Details     string  `json:"details,omitempty"`
	YoutubeID   string  `json:"youtubeId"`
}

// WatchURL returns the YouTube watch page for the special
func (s Special) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + s.YoutubeID
}
