package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/repositories"
	"github.com/janovincze/idbroker/internal/api/services"
	"github.com/janovincze/idbroker/internal/config"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/oidc/providers"
)

func TestServer_HealthEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", response.Status)
	}
}

func TestServer_LivenessEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.ProbeResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response.Status)
	}
}

func TestServer_VersionEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.VersionResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Version != "0.1.0-test" {
		t.Errorf("expected version '0.1.0-test', got '%s'", response.Version)
	}

	if response.APIVersion != "v1" {
		t.Errorf("expected api_version 'v1', got '%s'", response.APIVersion)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestServer_SourceTypesWithoutAuth(t *testing.T) {
	server := newTestServer(t, false)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sources/oauth/source_types?name=github", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var types []models.SourceTypeResponse
	if err := json.NewDecoder(w.Body).Decode(&types); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(types) != 1 || types[0].Name != "github" {
		t.Errorf("expected only github, got %+v", types)
	}
}

func TestServer_SourceRoutesRequireToken(t *testing.T) {
	server := newTestServer(t, true)
	tokens, err := services.NewTokenService(testConfig(true).Auth)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	reader, _, err := tokens.Issue(&models.IssueTokenRequest{
		Subject:     "reader",
		Permissions: []string{models.PermissionSourcesRead},
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/v1/sources/oauth", want: http.StatusUnauthorized},
		{name: "reader lists", method: http.MethodGet, path: "/api/v1/sources/oauth", token: reader, want: http.StatusOK},
		{name: "reader creates", method: http.MethodPost, path: "/api/v1/sources/oauth", token: reader, want: http.StatusForbidden},
		{name: "reader deletes", method: http.MethodDelete, path: "/api/v1/sources/oauth/x", token: reader, want: http.StatusForbidden},
		{name: "health stays open", method: http.MethodGet, path: "/health/live", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			server.Router().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestNewServer_AuthWithoutVerifier(t *testing.T) {
	_, err := NewServer(context.Background(), ServerConfig{Config: testConfig(true)})
	if err == nil {
		t.Error("expected error when auth is enabled without a verifier")
	}
}

func TestNewServer_InvalidTrustedProxies(t *testing.T) {
	cfg := testConfig(false)
	cfg.API.TrustedProxies = []string{"not-an-ip"}

	if _, err := NewServer(context.Background(), ServerConfig{Config: cfg}); err == nil {
		t.Error("expected error for invalid trusted proxy")
	}
}

func TestServer_RequestID(t *testing.T) {
	server := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")
	w = httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	requestID = w.Header().Get("X-Request-ID")
	if requestID != "test-request-id" {
		t.Errorf("expected X-Request-ID 'test-request-id', got '%s'", requestID)
	}
}

// emptyStore is a services.OAuthSourceStore with no sources.
type emptyStore struct{}

func (emptyStore) Create(_ context.Context, src *models.OAuthSource, _ string) (*models.OAuthSource, error) {
	out := *src
	out.ID = uuid.New()
	return &out, nil
}

func (emptyStore) GetByID(context.Context, uuid.UUID) (*models.OAuthSource, error) {
	return nil, repositories.ErrOAuthSourceNotFound
}

func (emptyStore) GetBySlug(context.Context, string) (*models.OAuthSource, error) {
	return nil, repositories.ErrOAuthSourceNotFound
}

func (emptyStore) List(context.Context, models.OAuthSourceFilter) ([]models.OAuthSource, int, error) {
	return nil, 0, nil
}

func (emptyStore) Update(context.Context, *models.OAuthSource, *string) (*models.OAuthSource, error) {
	return nil, repositories.ErrOAuthSourceNotFound
}

func (emptyStore) Delete(context.Context, uuid.UUID) error {
	return repositories.ErrOAuthSourceNotFound
}

func testConfig(auth bool) *config.Config {
	return &config.Config{
		Version:     "0.1.0-test",
		Environment: "test",
		API: config.APIConfig{
			ListenAddr:     ":8080",
			BaseURL:        "http://localhost:8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		Auth: config.AuthConfig{
			Enabled:   auth,
			JWTSecret: "test-secret",
			Issuer:    "idbroker-test",
			TokenTTL:  time.Hour,
		},
		Metrics: config.MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
	}
}

func newTestServer(t *testing.T, auth bool) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	cfg := testConfig(auth)

	registry := providers.NewRegistry()
	validator := services.NewSourceConfigValidator(registry, oidc.NewFetcher(nil, oidc.DefaultFetcherConfig(), logger), logger)
	serverCfg := ServerConfig{
		Config:        cfg,
		Logger:        logger,
		SourceService: services.NewOAuthSourceService(emptyStore{}, registry, validator, cfg.API.BaseURL, logger),
	}
	if auth {
		tokens, err := services.NewTokenService(cfg.Auth)
		if err != nil {
			t.Fatalf("NewTokenService() error = %v", err)
		}
		serverCfg.TokenVerifier = tokens
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server, err := NewServer(ctx, serverCfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return server
}
