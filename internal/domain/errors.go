package domain

import "errors"

var (
	// ErrInvalidRequest is returned when the scrape input is absent or blank
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when a record is not in the product cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrProductNotFound is returned when a stored record does not exist in the workspace
	ErrProductNotFound = errors.New("product not found")

	// ErrFetchFailed is returned when a page cannot be downloaded or answers non-2xx
	ErrFetchFailed = errors.New("page fetch failed")

	// ErrParseFailed is returned when a fetched page cannot be parsed as HTML
	ErrParseFailed = errors.New("page parse failed")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheUnavailable is returned when the product store cannot be reached
	ErrCacheUnavailable = errors.New("cache service unavailable")
)
