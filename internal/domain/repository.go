package domain

import (
	"context"
	"time"
)

// ProductRepository is the content-addressable product cache. Records are
// keyed by (workspace, id); Put is an upsert with last-write-wins semantics.
type ProductRepository interface {
	Get(ctx context.Context, workspaceID, id string) (*ProductRecord, error)
	Put(ctx context.Context, record *ProductRecord) error
	List(ctx context.Context, workspaceID string, filter ProductFilter) ([]ProductRecord, error)
	Delete(ctx context.Context, workspaceID, id string) error
	SetFavorite(ctx context.Context, workspaceID, id string, favorite bool) error
}

// PageFetcher downloads a single page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// DocumentParser turns a fetched page into a queryable document
type DocumentParser interface {
	Parse(page *Page) (Document, error)
}

// ScrapeMetrics receives per-URL outcomes from the orchestrator
type ScrapeMetrics interface {
	ObserveOutcome(outcome string)
	ObserveFetch(duration time.Duration, err error)
}
