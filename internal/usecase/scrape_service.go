package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cartlens/backend/internal/domain"
)

// Outcome labels reported to ScrapeMetrics
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeScraped   = "scraped"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// ScrapeServiceConfig holds configuration for the scrape service
type ScrapeServiceConfig struct {
	CacheEnabled    bool
	FetchTimeout    time.Duration
	MaxConcurrency  int
	PersistFailures bool
}

// ScrapeService turns free text into product records: discover URLs, then
// for each one read through the cache or fetch and extract.
type ScrapeService struct {
	repo      domain.ProductRepository
	fetcher   domain.PageFetcher
	parser    domain.DocumentParser
	profiles  *ProfileRegistry
	extractor *FieldExtractor
	metrics   domain.ScrapeMetrics
	config    ScrapeServiceConfig
	now       func() time.Time
}

// NewScrapeService creates a new scrape service with dependencies.
// metrics may be nil.
func NewScrapeService(
	repo domain.ProductRepository,
	fetcher domain.PageFetcher,
	parser domain.DocumentParser,
	profiles *ProfileRegistry,
	metrics domain.ScrapeMetrics,
	config ScrapeServiceConfig,
) *ScrapeService {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = 4
	}
	if profiles == nil {
		profiles = NewDefaultProfileRegistry()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &ScrapeService{
		repo:      repo,
		fetcher:   fetcher,
		parser:    parser,
		profiles:  profiles,
		extractor: NewFieldExtractor(),
		metrics:   metrics,
		config:    config,
		now:       time.Now,
	}
}

// ScrapeBatch returns one record per discovered URL, in discovery order.
// Only blank input is an error; per-URL failures become error records.
func (s *ScrapeService) ScrapeBatch(ctx context.Context, input domain.RawInput, workspaceID string) ([]domain.ProductRecord, error) {
	if input.IsEmpty() {
		return nil, domain.ErrInvalidRequest
	}
	if workspaceID == "" {
		workspaceID = domain.DefaultWorkspace
	}

	urls := DiscoverURLs(input...)
	records := make([]domain.ProductRecord, len(urls))
	if len(urls) == 0 {
		return records, nil
	}

	// Each task writes only its own index, so no lock is needed and the
	// output keeps input order regardless of completion order
	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			records[i] = s.scrapeOne(ctx, u, workspaceID)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("scrape: batch complete",
		zap.String("workspace", workspaceID),
		zap.Int("urls", len(urls)),
	)

	return records, nil
}

// scrapeOne never fails; problems are folded into an error record
func (s *ScrapeService) scrapeOne(ctx context.Context, url, workspaceID string) domain.ProductRecord {
	id := ProductID(url)

	if err := ctx.Err(); err != nil {
		s.metrics.ObserveOutcome(OutcomeCancelled)
		return s.errorRecord(id, url, workspaceID, err)
	}

	if s.config.CacheEnabled {
		cached, err := s.repo.Get(ctx, workspaceID, id)
		if err == nil {
			s.metrics.ObserveOutcome(OutcomeCacheHit)
			return *cached
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			zap.L().Warn("scrape: cache lookup failed", zap.String("url", url), zap.Error(err))
		}
	}

	fields, err := s.fetchAndExtract(ctx, url)
	if err != nil {
		record := s.errorRecord(id, url, workspaceID, err)

		// A cancelled caller says nothing about the page itself
		if ctx.Err() != nil {
			s.metrics.ObserveOutcome(OutcomeCancelled)
			return record
		}

		s.metrics.ObserveOutcome(OutcomeFailed)
		zap.L().Info("scrape: url failed", zap.String("url", url), zap.Error(err))
		if s.config.PersistFailures {
			s.store(ctx, &record)
		}
		return record
	}

	record := domain.ProductRecord{
		ID:          id,
		URL:         url,
		Title:       fields.Title,
		Image:       fields.Image,
		Price:       fields.Price,
		Size:        fields.Size,
		WorkspaceID: workspaceID,
		UpdatedAt:   s.now().UTC(),
	}
	s.metrics.ObserveOutcome(OutcomeScraped)
	s.store(ctx, &record)
	return record
}

// fetchAndExtract is bounded by the per-URL fetch timeout
func (s *ScrapeService) fetchAndExtract(ctx context.Context, url string) (fields domain.ExtractedFields, err error) {
	defer func() {
		// A panicking parser or extractor only fails this URL
		if r := recover(); r != nil {
			zap.L().Error("scrape: extraction panicked", zap.String("url", url), zap.Any("panic", r))
			err = domain.ErrParseFailed
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	start := s.now()
	page, err := s.fetcher.Fetch(fetchCtx, url)
	s.metrics.ObserveFetch(s.now().Sub(start), err)
	if err != nil {
		return fields, err
	}

	doc, err := s.parser.Parse(page)
	if err != nil {
		return fields, err
	}

	// Short links only reveal the shop after redirects
	profile := s.profiles.Match(url)
	if page.FinalURL != "" && page.FinalURL != url {
		if landed := s.profiles.Match(page.FinalURL); landed != nil {
			profile = landed
		}
	}
	return s.extractor.Extract(doc, profile), nil
}

// store persists a record when caching is on; failures are only logged
func (s *ScrapeService) store(ctx context.Context, record *domain.ProductRecord) {
	if !s.config.CacheEnabled {
		return
	}
	if err := s.repo.Put(ctx, record); err != nil {
		zap.L().Warn("scrape: failed to cache record",
			zap.String("url", record.URL),
			zap.String("workspace", record.WorkspaceID),
			zap.Error(err),
		)
	}
}

func (s *ScrapeService) errorRecord(id, url, workspaceID string, cause error) domain.ProductRecord {
	return domain.ProductRecord{
		ID:           id,
		URL:          url,
		Title:        domain.ErrorTitle,
		WorkspaceID:  workspaceID,
		Error:        true,
		ErrorMessage: cause.Error(),
		UpdatedAt:    s.now().UTC(),
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveOutcome(string)             {}
func (noopMetrics) ObserveFetch(time.Duration, error) {}
