package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Placeholder values written into records when a field could not be derived
const (
	FallbackTitle = "No Title"
	FallbackPrice = "Check Site"
	// SizeNotImplemented is returned for every record; size extraction does not exist yet
	SizeNotImplemented = "Visit Site"
	ErrorTitle         = "Error Loading Product"

	DefaultWorkspace = "default"
)

// ProductRecord is the normalized result of scraping one shopping link.
// ID is a stable hash of the URL, so one URL maps to one record per workspace.
type ProductRecord struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Image        string    `json:"image"`
	Price        string    `json:"price"`
	Size         string    `json:"size"`
	IsFavorite   bool      `json:"isFavorite"`
	WorkspaceID  string    `json:"workspaceId"`
	Error        bool      `json:"error,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ExtractedFields holds the product fields derived from a single page
type ExtractedFields struct {
	Title string `json:"title"`
	Image string `json:"image"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ProductFilter narrows a workspace listing
type ProductFilter struct {
	FavoritesOnly bool
}

// RawInput is free text submitted for scraping. It decodes from either a
// JSON string or a JSON array of strings.
type RawInput []string

// UnmarshalJSON accepts "text" as well as ["text", "more text"]
func (r *RawInput) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = RawInput{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("input must be a string or an array of strings")
	}
	*r = RawInput(many)
	return nil
}

// IsEmpty reports whether the input carries no non-blank text
func (r RawInput) IsEmpty() bool {
	for _, block := range r {
		if strings.TrimSpace(block) != "" {
			return false
		}
	}
	return true
}

// ScrapeRequest represents a batch scrape request
type ScrapeRequest struct {
	Input       RawInput `json:"input"`
	WorkspaceID string   `json:"workspaceId,omitempty"`
}

// FavoriteRequest toggles the favorite flag of a stored record
type FavoriteRequest struct {
	IsFavorite *bool `json:"isFavorite" binding:"required"`
}

// Page is a fetched HTML document, already decoded to UTF-8.
// FinalURL is where redirects ended up and equals URL when there were none.
type Page struct {
	URL      string
	FinalURL string
	Body     []byte
}
