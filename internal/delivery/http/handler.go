package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cartlens/backend/internal/domain"
	"github.com/cartlens/backend/internal/usecase"
)

// Version is reported by the health check
const Version = "1.0.0"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	scrapeService  *usecase.ScrapeService
	productService *usecase.ProductService
}

// NewHandler creates a new HTTP handler. Either service may be nil, in
// which case its endpoints answer 503.
func NewHandler(scrapeService *usecase.ScrapeService, productService *usecase.ProductService) *Handler {
	return &Handler{
		scrapeService:  scrapeService,
		productService: productService,
	}
}

// productsResponse is the list envelope shared by scrape and list endpoints
type productsResponse struct {
	Products []domain.ProductRecord `json:"products"`
	Count    int                    `json:"count"`
}

func newProductsResponse(records []domain.ProductRecord) productsResponse {
	if records == nil {
		records = []domain.ProductRecord{}
	}
	return productsResponse{Products: records, Count: len(records)}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cartlens-backend",
		"version": Version,
	})
}

// Scrape handles batch scrape requests
func (h *Handler) Scrape(c *gin.Context) {
	if h.scrapeService == nil {
		respondUnavailable(c)
		return
	}

	var req domain.ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	records, err := h.scrapeService.ScrapeBatch(c.Request.Context(), req.Input, req.WorkspaceID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProductsResponse(records))
}

// ListProducts returns a workspace's stored records
func (h *Handler) ListProducts(c *gin.Context) {
	if h.productService == nil {
		respondUnavailable(c)
		return
	}

	favoritesOnly := false
	if raw := c.Query("favorites"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "favorites must be a boolean"})
			return
		}
		favoritesOnly = v
	}

	records, err := h.productService.List(c.Request.Context(), c.Param("workspaceId"), favoritesOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProductsResponse(records))
}

// DeleteProduct evicts a record from a workspace
func (h *Handler) DeleteProduct(c *gin.Context) {
	if h.productService == nil {
		respondUnavailable(c)
		return
	}

	if err := h.productService.Delete(c.Request.Context(), c.Param("workspaceId"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetFavorite flips a record's favorite flag
func (h *Handler) SetFavorite(c *gin.Context) {
	if h.productService == nil {
		respondUnavailable(c)
		return
	}

	var req domain.FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	record, err := h.productService.SetFavorite(c.Request.Context(), c.Param("workspaceId"), c.Param("id"), *req.IsFavorite)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// respondError maps domain errors to HTTP status codes and aborts the chain.
// Middleware uses it too, so every error body has the same shape.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, domain.ErrRateLimited):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
	case errors.Is(err, domain.ErrCacheUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
	default:
		zap.L().Error("http: unhandled error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func respondUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service not configured"})
}
