// Package source defines the third-party document API that sync jobs
// ingest from. Field extraction is the source's concern; items arrive
// as named text properties.
package source

import (
	"context"
	"time"
)

// Item is one document from the source.
type Item struct {
	ID string `json:"id"`
	// Properties maps property names to their text. Each non-empty
	// property is embedded separately.
	Properties map[string]string `json:"properties"`
	Archived   bool              `json:"archived,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Source lists documents changed since a point in time.
type Source interface {
	// Fetch returns items updated strictly after since, oldest first.
	// A zero since returns everything.
	Fetch(ctx context.Context, since time.Time) ([]Item, error)
}

// Static is a Source over a fixed item list.
type Static []Item

// Fetch implements Source.
func (s Static) Fetch(_ context.Context, since time.Time) ([]Item, error) {
	out := make([]Item, 0, len(s))
	for _, it := range s {
		if since.IsZero() || it.UpdatedAt.After(since) {
			out = append(out, it)
		}
	}
	return out, nil
}
