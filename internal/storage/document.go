package storage

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"
)

// Document is a mirrored content store document
type Document struct {
	ID          string    `db:"id"`
	Type        string    `db:"type"`
	Slug        *string   `db:"slug"` // posts only; nil when slug.current is not defined
	Date        string    `db:"date"` // shows only, YYYY-MM-DD
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	ContentHash string    `db:"content_hash"`
	Body        string    `db:"body"` // raw JSON as returned upstream
	SyncedAt    time.Time `db:"synced_at"`
}

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// envelope holds the fields the mirror indexes on
type envelope struct {
	ID        string    `json:"_id"`
	Type      string    `json:"_type"`
	CreatedAt time.Time `json:"_createdAt"`
	UpdatedAt time.Time `json:"_updatedAt"`
	Slug      *struct {
		Current *string `json:"current"`
	} `json:"slug"`
	Date string `json:"date"`
}

// NewDocument builds a mirror row from a raw upstream document
func NewDocument(raw json.RawMessage) (*Document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("document is missing _id or _type")
	}

	doc := &Document{
		ID:          env.ID,
		Type:        env.Type,
		Date:        env.Date,
		CreatedAt:   env.CreatedAt.UTC(),
		UpdatedAt:   env.UpdatedAt.UTC(),
		ContentHash: fmt.Sprintf("%x", md5.Sum(raw)),
		Body:        string(raw),
	}
	if env.Slug != nil {
		doc.Slug = env.Slug.Current
	}
	return doc, nil
}
