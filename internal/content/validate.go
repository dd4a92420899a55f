package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	slugPattern      = regexp.MustCompile(`(?i)^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	youtubeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// Validate checks the post schema
func (p Post) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Slug, validation.By(func(value interface{}) error {
			s, _ := value.(Slug)
			return validation.Validate(s.Current,
				validation.Required,
				validation.Match(slugPattern).Error("must be URL-safe"),
			)
		})),
	)
}

// Validate checks the review schema
func (r Review) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.RuneLength(0, 120)),
		validation.Field(&r.Text, validation.Required, LimitedRichText),
		validation.Field(&r.StarRating, validation.By(starRating)),
	)
}

// Validate checks the show schema
func (s Show) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Date, validation.Required, validation.Date(ShowDateLayout)),
		validation.Field(&s.Location, validation.Required, validation.RuneLength(0, 160)),
		validation.Field(&s.Description, validation.RuneLength(0, 240)),
		validation.Field(&s.Link, validation.Required, validation.By(httpURI)),
	)
}

// Validate checks the podcast schema
func (p Podcast) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.RuneLength(0, 160)),
		validation.Field(&p.Description, validation.Required, validation.RuneLength(0, 320)),
	)
}

// Validate checks the special schema
func (s Special) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Title, validation.Required, validation.RuneLength(0, 160)),
		validation.Field(&s.Description, validation.Required, LimitedRichText),
		validation.Field(&s.Details, validation.RuneLength(0, 240)),
		validation.Field(&s.YoutubeID,
			validation.Required,
			validation.Match(youtubeIDPattern).Error("please enter the 11-character YouTube video ID, not the full URL"),
		),
	)
}

// ValidateRaw decodes a raw document of the given kind and validates it
func ValidateRaw(kind string, raw json.RawMessage) error {
	var doc validation.Validatable
	switch kind {
	case KindPost:
		doc = &Post{}
	case KindReview:
		doc = &Review{}
	case KindShow:
		doc = &Show{}
	case KindPodcast:
		doc = &Podcast{}
	case KindSpecial:
		doc = &Special{}
	default:
		return fmt.Errorf("unknown document kind %q", kind)
	}

	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return doc.Validate()
}

// starRating accepts an absent rating or a whole number of stars from 1 to 5
func starRating(value interface{}) error {
	p, _ := value.(*float64)
	if p == nil {
		return nil
	}
	if *p != math.Trunc(*p) {
		return errors.New("must be an integer")
	}
	if *p < 1 || *p > 5 {
		return errors.New("must be between 1 and 5")
	}
	return nil
}

func httpURI(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	return nil
}
