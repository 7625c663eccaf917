package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/repositories"
	"github.com/janovincze/idbroker/internal/api/services"
	"github.com/janovincze/idbroker/internal/health"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/oidc/providers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthHandler_GetHealth_NoManager(t *testing.T) {
	router := gin.New()
	router.GET("/health", NewHealthHandler(nil, "1.2.3").GetHealth)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response models.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
}

func TestHealthHandler_GetHealth_WithManager(t *testing.T) {
	manager := health.NewManager(health.DefaultManagerConfig(), nil)
	manager.Register(health.NewComponentChecker("database", func(ctx context.Context) (health.Status, string, error) {
		return health.StatusHealthy, "ok", nil
	}))
	manager.Register(health.NewComponentChecker("vault", func(ctx context.Context) (health.Status, string, error) {
		return health.StatusDegraded, "token renewal failing", nil
	}))

	router := gin.New()
	router.GET("/health", NewHealthHandler(manager, "1.2.3").GetHealth)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response models.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "degraded", response.Status)
	require.Len(t, response.Components, 2)
	assert.Equal(t, "database", response.Components[0].Name)
	vaultHealth, ok := response.Component("vault")
	require.True(t, ok)
	assert.Equal(t, "token renewal failing", vaultHealth.Message)
	assert.Equal(t, "1.2.3", response.Version)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	manager := health.NewManager(health.DefaultManagerConfig(), nil)
	manager.Register(health.NewDatabaseChecker("database", func(ctx context.Context) error {
		return io.ErrUnexpectedEOF
	}))
	handler := NewHealthHandler(manager, "1.2.3")

	router := gin.New()
	router.GET("/health", handler.GetHealth)
	router.GET("/health/ready", handler.GetReadiness)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var ready models.ProbeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ready))
	assert.Equal(t, "not_ready", ready.Status)
	assert.Equal(t, []string{"database"}, ready.Failing)
}

func TestHealthHandler_GetLiveness(t *testing.T) {
	router := gin.New()
	router.GET("/health/live", NewHealthHandler(nil, "1.2.3").GetLiveness)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response models.ProbeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response.Status)
}

func TestGetVersion(t *testing.T) {
	router := gin.New()
	router.GET("/api/v1/version", GetVersion("1.2.3"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response models.VersionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "1.2.3", response.Version)
	assert.Equal(t, APIVersion, response.APIVersion)
	assert.NotEmpty(t, response.GoVersion)

	assert.Equal(t, Version, NewVersionResponse("").Version)
}

// sliceStore is a minimal services.OAuthSourceStore.
type sliceStore struct {
	mu      sync.Mutex
	sources []models.OAuthSource
}

func (s *sliceStore) Create(_ context.Context, src *models.OAuthSource, _ string) (*models.OAuthSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources {
		if existing.Slug == src.Slug {
			return nil, repositories.ErrOAuthSourceSlugExists
		}
	}
	out := *src
	out.ID = uuid.New()
	s.sources = append(s.sources, out)
	return &out, nil
}

func (s *sliceStore) find(match func(models.OAuthSource) bool) (*models.OAuthSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if match(src) {
			out := src
			return &out, nil
		}
	}
	return nil, repositories.ErrOAuthSourceNotFound
}

func (s *sliceStore) GetByID(_ context.Context, id uuid.UUID) (*models.OAuthSource, error) {
	return s.find(func(src models.OAuthSource) bool { return src.ID == id })
}

func (s *sliceStore) GetBySlug(_ context.Context, slug string) (*models.OAuthSource, error) {
	return s.find(func(src models.OAuthSource) bool { return src.Slug == slug })
}

func (s *sliceStore) List(_ context.Context, _ models.OAuthSourceFilter) ([]models.OAuthSource, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.OAuthSource(nil), s.sources...)
	return out, len(out), nil
}

func (s *sliceStore) Update(_ context.Context, src *models.OAuthSource, _ *string) (*models.OAuthSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		if s.sources[i].ID == src.ID {
			s.sources[i] = *src
			out := *src
			return &out, nil
		}
	}
	return nil, repositories.ErrOAuthSourceNotFound
}

func (s *sliceStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		if s.sources[i].ID == id {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			return nil
		}
	}
	return repositories.ErrOAuthSourceNotFound
}

// newIdP serves a discovery document. A wellKnownStatus other than 200
// returns body as the error response.
func newIdP(t *testing.T, wellKnownStatus int, body string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			if wellKnownStatus != http.StatusOK {
				w.WriteHeader(wellKnownStatus)
				_, _ = io.WriteString(w, body)
				return
			}
			base := server.URL
			_, _ = io.WriteString(w, `{"issuer":"`+base+`","authorization_endpoint":"`+base+`/auth",`+
				`"token_endpoint":"`+base+`/token","userinfo_endpoint":"`+base+`/userinfo","jwks_uri":"`+base+`/jwks"}`)
		case "/jwks":
			_, _ = io.WriteString(w, `{"keys":[{"kty":"EC","crv":"P-256","kid":"k1","use":"sig",`+
				`"x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU","y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newSourceRouter(t *testing.T) *gin.Engine {
	t.Helper()
	registry := providers.NewRegistry()
	fetcher := oidc.NewFetcher(nil, oidc.DefaultFetcherConfig(), testLogger())
	validator := services.NewSourceConfigValidator(registry, fetcher, testLogger())
	service := services.NewOAuthSourceService(&sliceStore{}, registry, validator, "", testLogger())
	handler := NewOAuthSourceHandler(service)

	router := gin.New()
	g := router.Group("/api/v1/sources/oauth")
	g.GET("/source_types", handler.SourceTypes)
	g.POST("/discover", handler.Discover)
	g.GET("", handler.List)
	g.POST("", handler.Create)
	g.GET("/by-id/:id", handler.GetByID)
	g.GET("/:slug", handler.Get)
	g.PUT("/:slug", handler.Update)
	g.PATCH("/:slug", handler.Patch)
	g.DELETE("/:slug", handler.Delete)
	return router
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body) //nolint:errcheck
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOAuthSourceHandler_SourceTypes(t *testing.T) {
	router := newSourceRouter(t)

	tests := []struct {
		name    string
		query   string
		wantLen int
		check   func(t *testing.T, types []models.SourceTypeResponse)
	}{
		{
			name:    "all types",
			query:   "",
			wantLen: len(providers.NewRegistry().List()),
		},
		{
			name:    "single type",
			query:   "?name=okta",
			wantLen: 1,
			check: func(t *testing.T, types []models.SourceTypeResponse) {
				assert.Equal(t, "Okta", types[0].VerboseName)
				assert.Nil(t, types[0].AuthorizationURL)
			},
		},
		{name: "unknown name", query: "?name=nope", wantLen: 0},
		{name: "placeholder name", query: "?name=default", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodGet, "/api/v1/sources/oauth/source_types"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.True(t, strings.HasPrefix(strings.TrimSpace(w.Body.String()), "["), "body is a JSON list")

			var types []models.SourceTypeResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&types))
			assert.Len(t, types, tt.wantLen)
			if tt.check != nil {
				tt.check(t, types)
			}
		})
	}
}

func TestOAuthSourceHandler_Lifecycle(t *testing.T) {
	idp := newIdP(t, http.StatusOK, "")
	router := newSourceRouter(t)
	base := "/api/v1/sources/oauth"

	w := doJSON(router, http.MethodPost, base, map[string]any{
		"name":                "Corp SSO",
		"provider_type":       "generic-oidc",
		"consumer_key":        "client",
		"consumer_secret":     "secret",
		"oidc_well_known_url": idp.URL + "/.well-known/openid-configuration",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "corp-sso", created["slug"])
	assert.Equal(t, idp.URL+"/auth", created["authorization_url"])
	assert.Equal(t, idp.URL+"/jwks", created["oidc_jwks_url"])
	assert.Equal(t, "/source/oauth/callback/corp-sso/", created["callback_url"])
	assert.NotContains(t, created, "consumer_secret")

	w = doJSON(router, http.MethodGet, base+"/corp-sso", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, base+"/by-id/"+created["pk"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, base+"/by-id/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPatch, base+"/corp-sso", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var patched models.OAuthSource
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patched))
	assert.False(t, patched.Enabled)

	w = doJSON(router, http.MethodPut, base+"/corp-sso", map[string]any{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, w.Code, "PUT requires name, provider_type and consumer_key")

	w = doJSON(router, http.MethodGet, base+"?has_jwks=true&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.OAuthSourceListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, 10, list.Limit)

	w = doJSON(router, http.MethodGet, base+"?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, base, map[string]any{
		"name":                "Corp SSO",
		"provider_type":       "generic-oidc",
		"consumer_key":        "client",
		"consumer_secret":     "secret",
		"oidc_well_known_url": idp.URL + "/.well-known/openid-configuration",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodDelete, base+"/corp-sso", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, base+"/corp-sso", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOAuthSourceHandler_CreateDiscoveryFailure(t *testing.T) {
	idp := newIdP(t, http.StatusServiceUnavailable, "service unavailable")
	router := newSourceRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/sources/oauth", map[string]any{
		"name":                "Corp SSO",
		"provider_type":       "generic-oidc",
		"consumer_key":        "client",
		"consumer_secret":     "secret",
		"oidc_well_known_url": idp.URL + "/.well-known/openid-configuration",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.ProblemDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ErrorTypeValidation, problem.Type)
	assert.Equal(t, []string{"service unavailable"}, problem.FieldMessages()["oidc_well_known_url"])
}

func TestOAuthSourceHandler_CreateIncomplete(t *testing.T) {
	router := newSourceRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/sources/oauth", map[string]any{
		"name":            "Okta",
		"provider_type":   "okta",
		"consumer_key":    "client",
		"consumer_secret": "secret",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.ProblemDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	msgs := problem.FieldMessages()[models.NonFieldErrorsKey]
	require.NotEmpty(t, msgs)
	assert.Equal(t, "authorization_url is required for provider Okta", msgs[0])
}

func TestOAuthSourceHandler_Discover(t *testing.T) {
	idp := newIdP(t, http.StatusOK, "")
	router := newSourceRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/sources/oauth/discover", map[string]any{
		"provider_type":       "generic-oidc",
		"oidc_well_known_url": idp.URL + "/.well-known/openid-configuration",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.DiscoverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, idp.URL+"/token", resp.AccessTokenURL)
	require.Len(t, resp.Keys, 1)
	assert.Equal(t, "k1", resp.Keys[0].KeyID)
	assert.Equal(t, "EC", resp.Keys[0].KeyType)

	w = doJSON(router, http.MethodPost, "/api/v1/sources/oauth/discover", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
