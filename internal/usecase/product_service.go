package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/cartlens/backend/internal/domain"
)

// ProductService exposes the stored records to the workspace CRUD layer
type ProductService struct {
	repo domain.ProductRepository
}

// NewProductService creates a new product service
func NewProductService(repo domain.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// List returns a workspace's records, optionally only favorites
func (s *ProductService) List(ctx context.Context, workspaceID string, favoritesOnly bool) ([]domain.ProductRecord, error) {
	workspaceID = normalizeWorkspace(workspaceID)
	return s.repo.List(ctx, workspaceID, domain.ProductFilter{FavoritesOnly: favoritesOnly})
}

// Delete evicts a record; the next scrape of its URL fetches again
func (s *ProductService) Delete(ctx context.Context, workspaceID, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrInvalidRequest
	}
	return s.repo.Delete(ctx, normalizeWorkspace(workspaceID), id)
}

// SetFavorite updates the favorite flag and returns the stored record
func (s *ProductService) SetFavorite(ctx context.Context, workspaceID, id string, favorite bool) (*domain.ProductRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidRequest
	}
	workspaceID = normalizeWorkspace(workspaceID)
	if err := s.repo.SetFavorite(ctx, workspaceID, id, favorite); err != nil {
		return nil, err
	}

	record, err := s.repo.Get(ctx, workspaceID, id)
	if errors.Is(err, domain.ErrCacheMiss) {
		// Expired or deleted between the update and the read
		return nil, domain.ErrProductNotFound
	}
	return record, err
}

func normalizeWorkspace(workspaceID string) string {
	if workspaceID = strings.TrimSpace(workspaceID); workspaceID == "" {
		return domain.DefaultWorkspace
	}
	return workspaceID
}
