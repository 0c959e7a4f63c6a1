package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cartlens/backend/config"
	"github.com/cartlens/backend/internal/domain"
	"github.com/cartlens/backend/internal/infrastructure/cache"
	"github.com/cartlens/backend/internal/infrastructure/htmldoc"
	"github.com/cartlens/backend/internal/infrastructure/metrics"
	"github.com/cartlens/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

// stubFetcher serves canned pages by URL
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.pages[url]
	if !ok {
		return nil, domain.ErrFetchFailed
	}
	return &domain.Page{URL: url, FinalURL: url, Body: []byte(body)}, nil
}

const mugPage = `<html><head><title>Blue Mug</title>
<script type="application/ld+json">{"@type":"Product","offers":{"price":"12.00","priceCurrency":"USD"}}</script>
</head><body><img src="https://cdn.test/mug.jpg"></body></html>`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{
			Enabled: true,
			Type:    "memory",
		},
	}
}

type testEnv struct {
	router  *gin.Engine
	fetcher *stubFetcher
	store   domain.ProductRepository
}

// setupTestEnv wires real services over an in-memory store and stub fetcher
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = store.Close() })
	return setupTestEnvWith(t, testConfig(), store)
}

// setupTestEnvWith wires real services over the given store
func setupTestEnvWith(t *testing.T, cfg *config.Config, store domain.ProductRepository) *testEnv {
	t.Helper()

	fetcher := &stubFetcher{pages: map[string]string{"https://shop.test/mug": mugPage}}

	scrapeService := usecase.NewScrapeService(store, fetcher, htmldoc.NewParser(), nil, nil, usecase.ScrapeServiceConfig{
		CacheEnabled:    true,
		FetchTimeout:    time.Second,
		MaxConcurrency:  2,
		PersistFailures: true,
	})
	handler := NewHandler(scrapeService, usecase.NewProductService(store))

	return &testEnv{
		router:  SetupRouter(cfg, handler, metrics.New()),
		fetcher: fetcher,
		store:   store,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type productsBody struct {
	Products []domain.ProductRecord `json:"products"`
	Count    int                    `json:"count"`
}

func decodeProducts(t *testing.T, w *httptest.ResponseRecorder) productsBody {
	t.Helper()
	var body productsBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return body
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		env := setupTestEnv(t)
		w := env.do("GET", "/health", "")

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		var response map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "cartlens-backend" {
			t.Errorf("service = %v, want cartlens-backend", response["service"])
		}
		if response["version"] != Version {
			t.Errorf("version = %v, want %s", response["version"], Version)
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		env := setupTestEnv(t)
		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			if w := env.do(method, "/health", ""); w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestScrapeEndpoint(t *testing.T) {
	t.Run("scrapes urls from free text", func(t *testing.T) {
		env := setupTestEnv(t)
		w := env.do("POST", "/api/v1/scrape", `{"input":"get https://shop.test/mug and https://down.test/x","workspaceId":"home"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}

		body := decodeProducts(t, w)
		if body.Count != 2 || len(body.Products) != 2 {
			t.Fatalf("count = %d, products = %d, want 2", body.Count, len(body.Products))
		}

		mug := body.Products[0]
		if mug.Title != "Blue Mug" || mug.Price != "USD 12.00" || mug.Image != "https://cdn.test/mug.jpg" {
			t.Errorf("unexpected record: %+v", mug)
		}
		if mug.WorkspaceID != "home" || mug.Size != domain.SizeNotImplemented {
			t.Errorf("unexpected record: %+v", mug)
		}

		failed := body.Products[1]
		if !failed.Error || failed.Title != domain.ErrorTitle || failed.ErrorMessage == "" {
			t.Errorf("expected error record, got %+v", failed)
		}
	})

	t.Run("accepts an array of text blocks", func(t *testing.T) {
		env := setupTestEnv(t)
		w := env.do("POST", "/api/v1/scrape", `{"input":["https://shop.test/mug","again https://shop.test/mug."]}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		body := decodeProducts(t, w)
		if body.Count != 1 {
			t.Errorf("count = %d, want 1", body.Count)
		}
		if body.Products[0].WorkspaceID != domain.DefaultWorkspace {
			t.Errorf("workspaceId = %s, want %s", body.Products[0].WorkspaceID, domain.DefaultWorkspace)
		}
	})

	t.Run("second request is served from cache", func(t *testing.T) {
		env := setupTestEnv(t)
		payload := `{"input":"https://shop.test/mug"}`
		env.do("POST", "/api/v1/scrape", payload)
		env.do("POST", "/api/v1/scrape", payload)

		if env.fetcher.calls != 1 {
			t.Errorf("fetch calls = %d, want 1", env.fetcher.calls)
		}
	})

	t.Run("text without urls returns empty list", func(t *testing.T) {
		env := setupTestEnv(t)
		w := env.do("POST", "/api/v1/scrape", `{"input":"nothing to see"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), `"products":[]`) {
			t.Errorf("body = %s, want empty products array", w.Body.String())
		}
	})

	t.Run("returns 400 for empty input", func(t *testing.T) {
		env := setupTestEnv(t)
		for _, payload := range []string{`{"input":"   "}`, `{"input":[]}`, `{}`} {
			w := env.do("POST", "/api/v1/scrape", payload)
			if w.Code != http.StatusBadRequest {
				t.Errorf("payload %s: Status = %d, want %d", payload, w.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("returns 400 for invalid JSON", func(t *testing.T) {
		env := setupTestEnv(t)
		for _, payload := range []string{`{invalid json}`, `{"input":42}`} {
			w := env.do("POST", "/api/v1/scrape", payload)
			if w.Code != http.StatusBadRequest {
				t.Errorf("payload %s: Status = %d, want %d", payload, w.Code, http.StatusBadRequest)
			}
			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if response["error"] == nil {
				t.Error("expected error field in response")
			}
		}
	})

	t.Run("returns 503 without a service", func(t *testing.T) {
		router := SetupRouter(testConfig(), NewHandler(nil, nil), nil)
		req := httptest.NewRequest("POST", "/api/v1/scrape", strings.NewReader(`{"input":"x"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestProductEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	w := env.do("POST", "/api/v1/scrape", `{"input":"https://shop.test/mug","workspaceId":"home"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("seed scrape failed: %d", w.Code)
	}
	id := decodeProducts(t, w).Products[0].ID

	t.Run("lists workspace products", func(t *testing.T) {
		body := decodeProducts(t, env.do("GET", "/api/v1/workspaces/home/products", ""))
		if body.Count != 1 || body.Products[0].ID != id {
			t.Errorf("unexpected list: %+v", body)
		}

		other := decodeProducts(t, env.do("GET", "/api/v1/workspaces/other/products", ""))
		if other.Count != 0 {
			t.Errorf("other workspace count = %d, want 0", other.Count)
		}
	})

	t.Run("favorites filter", func(t *testing.T) {
		body := decodeProducts(t, env.do("GET", "/api/v1/workspaces/home/products?favorites=true", ""))
		if body.Count != 0 {
			t.Errorf("favorites count = %d, want 0", body.Count)
		}

		w := env.do("PUT", "/api/v1/workspaces/home/products/"+id+"/favorite", `{"isFavorite":true}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		var record domain.ProductRecord
		if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if !record.IsFavorite {
			t.Error("expected isFavorite = true")
		}

		body = decodeProducts(t, env.do("GET", "/api/v1/workspaces/home/products?favorites=true", ""))
		if body.Count != 1 {
			t.Errorf("favorites count = %d, want 1", body.Count)
		}
	})

	t.Run("rejects bad favorites query", func(t *testing.T) {
		if w := env.do("GET", "/api/v1/workspaces/home/products?favorites=maybe", ""); w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("favorite requires a body", func(t *testing.T) {
		if w := env.do("PUT", "/api/v1/workspaces/home/products/"+id+"/favorite", `{}`); w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("favorite on missing product", func(t *testing.T) {
		if w := env.do("PUT", "/api/v1/workspaces/home/products/nope/favorite", `{"isFavorite":true}`); w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("delete then 404", func(t *testing.T) {
		if w := env.do("DELETE", "/api/v1/workspaces/home/products/"+id, ""); w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if w := env.do("DELETE", "/api/v1/workspaces/home/products/"+id, ""); w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for the extension", func(t *testing.T) {
		env := setupTestEnv(t)
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "chrome-extension://cartlensext01")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://cartlensext01" {
			t.Errorf("Access-Control-Allow-Origin = %s", got)
		}
	})

	t.Run("scrape preflight for localhost", func(t *testing.T) {
		env := setupTestEnv(t)
		req := httptest.NewRequest("OPTIONS", "/api/v1/scrape", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %s", got)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.do("POST", "/api/v1/scrape", `{"input":"https://shop.test/mug"}`)

	w := env.do("GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `cartlens_http_requests_total{method="POST",path="/api/v1/scrape",status="200"} 1`) {
		t.Errorf("scrape request not counted:\n%s", w.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestEnv(t)
	if w := env.do("GET", "/health", ""); w.Header().Get(requestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return body["error"]
}

func TestExpiredProductIsNotFound(t *testing.T) {
	store := cache.NewMemoryCache(20 * time.Millisecond)
	t.Cleanup(func() { _ = store.Close() })
	env := setupTestEnvWith(t, testConfig(), store)

	record := &domain.ProductRecord{ID: "p1", WorkspaceID: "home", URL: "https://shop.test/mug", Title: "Blue Mug"}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if body := decodeProducts(t, env.do("GET", "/api/v1/workspaces/home/products", "")); body.Count != 0 {
		t.Errorf("expired record listed: %+v", body)
	}

	w := env.do("PUT", "/api/v1/workspaces/home/products/p1/favorite", `{"isFavorite":true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("favorite Status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := errorMessage(t, w); got != "Product not found" {
		t.Errorf("favorite error = %q", got)
	}

	if w := env.do("DELETE", "/api/v1/workspaces/home/products/p1", ""); w.Code != http.StatusNotFound {
		t.Errorf("delete Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStorageUnavailable(t *testing.T) {
	store, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cartlens.db"), 0)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	env := setupTestEnvWith(t, testConfig(), store)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"list", "GET", "/api/v1/workspaces/home/products", ""},
		{"delete", "DELETE", "/api/v1/workspaces/home/products/p1", ""},
		{"favorite", "PUT", "/api/v1/workspaces/home/products/p1/favorite", `{"isFavorite":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.body)
			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
			}
			if got := errorMessage(t, w); got != "Storage unavailable" {
				t.Errorf("error = %q", got)
			}
		})
	}

	t.Run("scrape still answers from the fetcher", func(t *testing.T) {
		w := env.do("POST", "/api/v1/scrape", `{"input":"https://shop.test/mug"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if body := decodeProducts(t, w); body.Count != 1 || body.Products[0].Title != "Blue Mug" {
			t.Errorf("unexpected scrape result: %+v", body)
		}
	})
}

func TestRateLimitedAPI(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.PerIP = 2
	store := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = store.Close() })
	env := setupTestEnvWith(t, cfg, store)

	for i := 0; i < 2; i++ {
		if w := env.do("GET", "/api/v1/workspaces/home/products", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d Status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := env.do("POST", "/api/v1/scrape", `{"input":"https://shop.test/mug"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := errorMessage(t, w); got != "Rate limit exceeded" {
		t.Errorf("error = %q", got)
	}
	if env.fetcher.calls != 0 {
		t.Errorf("fetcher called %d times behind the limiter", env.fetcher.calls)
	}

	// Health sits outside the API group
	if w := env.do("GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health Status = %d, want %d", w.Code, http.StatusOK)
	}
}
