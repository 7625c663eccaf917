package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/repositories"
	"github.com/janovincze/idbroker/internal/oidc/providers"
)

// memoryStore is an in-memory OAuthSourceStore.
type memoryStore struct {
	mu      sync.Mutex
	sources map[uuid.UUID]models.OAuthSource
	secrets map[uuid.UUID]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sources: make(map[uuid.UUID]models.OAuthSource),
		secrets: make(map[uuid.UUID]string),
	}
}

func (m *memoryStore) conflict(src *models.OAuthSource) error {
	for id, existing := range m.sources {
		if id == src.ID {
			continue
		}
		if existing.Slug == src.Slug {
			return repositories.ErrOAuthSourceSlugExists
		}
		if existing.Name == src.Name {
			return repositories.ErrOAuthSourceNameExists
		}
	}
	return nil
}

func (m *memoryStore) Create(_ context.Context, src *models.OAuthSource, secret string) (*models.OAuthSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *src
	out.ID = uuid.New()
	if err := m.conflict(&out); err != nil {
		return nil, err
	}
	m.sources[out.ID] = out
	m.secrets[out.ID] = secret
	return &out, nil
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.OAuthSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok {
		return nil, repositories.ErrOAuthSourceNotFound
	}
	return &src, nil
}

func (m *memoryStore) GetBySlug(_ context.Context, slug string) (*models.OAuthSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range m.sources {
		if src.Slug == slug {
			return &src, nil
		}
	}
	return nil, repositories.ErrOAuthSourceNotFound
}

func (m *memoryStore) List(_ context.Context, filter models.OAuthSourceFilter) ([]models.OAuthSource, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OAuthSource
	for _, src := range m.sources {
		if filter.Search != "" && !strings.Contains(src.Name, filter.Search) && !strings.Contains(src.Slug, filter.Search) {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *memoryStore) Update(_ context.Context, src *models.OAuthSource, secret *string) (*models.OAuthSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[src.ID]; !ok {
		return nil, repositories.ErrOAuthSourceNotFound
	}
	if err := m.conflict(src); err != nil {
		return nil, err
	}
	m.sources[src.ID] = *src
	if secret != nil {
		m.secrets[src.ID] = *secret
	}
	return src, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return repositories.ErrOAuthSourceNotFound
	}
	delete(m.sources, id)
	delete(m.secrets, id)
	return nil
}

const (
	idpWellKnown = "https://idp.example/.well-known/openid-configuration"
	idpJWKS      = "https://idp.example/jwks"
)

func idpFetcher() *stubFetcher {
	return &stubFetcher{docs: map[string]map[string]any{
		idpWellKnown: {
			"issuer":                 "https://idp.example",
			"authorization_endpoint": "https://idp.example/auth",
			"token_endpoint":         "https://idp.example/token",
			"userinfo_endpoint":      "https://idp.example/userinfo",
			"jwks_uri":               idpJWKS,
		},
		idpJWKS: {"keys": []any{}},
		"https://other.example/.well-known/openid-configuration": {
			"issuer":                 "https://other.example",
			"authorization_endpoint": "https://other.example/auth",
			"token_endpoint":         "https://other.example/token",
			"userinfo_endpoint":      "https://other.example/userinfo",
		},
	}}
}

func newTestService(store OAuthSourceStore, fetcher DocumentFetcher) *OAuthSourceService {
	registry := providers.NewRegistry()
	validator := NewSourceConfigValidator(registry, fetcher, testLogger())
	return NewOAuthSourceService(store, registry, validator, "https://broker.example/", testLogger())
}

func createRequest() *models.CreateOAuthSourceRequest {
	return &models.CreateOAuthSourceRequest{
		Name:             "Corp SSO",
		ProviderType:     "generic-oidc",
		ConsumerKey:      "client",
		ConsumerSecret:   "secret",
		OIDCWellKnownURL: idpWellKnown,
	}
}

func TestOAuthSourceService_SourceTypes(t *testing.T) {
	svc := newTestService(newMemoryStore(), &stubFetcher{})

	all := svc.SourceTypes("")
	require.NotEmpty(t, all)
	assert.Equal(t, "generic-oidc", all[0].Name)
	for _, st := range all {
		assert.NotEqual(t, providers.DefaultTypeName, st.Name)
	}

	one := svc.SourceTypes("github")
	require.Len(t, one, 1)
	assert.Equal(t, "GitHub", one[0].VerboseName)

	assert.Empty(t, svc.SourceTypes("does-not-exist"))
	assert.NotNil(t, svc.SourceTypes("does-not-exist"))
	assert.Empty(t, svc.SourceTypes(providers.DefaultTypeName))
}

func TestOAuthSourceService_Create(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, idpFetcher())
	ctx := context.Background()

	src, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	assert.Equal(t, "corp-sso", src.Slug)
	assert.True(t, src.Enabled)
	assert.Equal(t, "https://idp.example/auth", src.AuthorizationURL)
	assert.Equal(t, "https://idp.example/token", src.AccessTokenURL)
	assert.Equal(t, "https://idp.example/userinfo", src.ProfileURL)
	assert.Equal(t, idpJWKS, src.OIDCJWKSURL)
	assert.Equal(t, map[string]any{"keys": []any{}}, src.OIDCJWKS)
	assert.Equal(t, "https://broker.example/source/oauth/callback/corp-sso/", src.CallbackURL)
	require.NotNil(t, src.Type)
	assert.Equal(t, "OpenID Connect", src.Type.VerboseName)
	assert.Equal(t, "secret", store.secrets[src.ID])

	_, err = svc.Create(ctx, createRequest())
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.FieldSlug, conflict.Field)
}

func TestOAuthSourceService_CreateValidation(t *testing.T) {
	svc := newTestService(newMemoryStore(), idpFetcher())
	ctx := context.Background()

	t.Run("unknown provider type", func(t *testing.T) {
		req := createRequest()
		req.ProviderType = "myspace"
		_, err := svc.Create(ctx, req)

		verr := requireValidationError(t, err)
		assert.Equal(t, models.FieldProviderType, verr.Errors[0].Field)
		assert.Equal(t, "invalid provider_type", verr.Errors[0].Message)
	})

	t.Run("incomplete configuration", func(t *testing.T) {
		req := createRequest()
		req.OIDCWellKnownURL = ""
		_, err := svc.Create(ctx, req)

		verr := requireValidationError(t, err)
		assert.Equal(t, models.NonFieldErrorsKey, verr.Errors[0].Field)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Create(ctx, &models.CreateOAuthSourceRequest{})
		verr := requireValidationError(t, err)
		fields := make([]string, 0, len(verr.Errors))
		for _, fe := range verr.Errors {
			fields = append(fields, fe.Field)
		}
		assert.Contains(t, fields, models.FieldName)
		assert.Contains(t, fields, models.FieldConsumerSecret)
	})
}

func TestOAuthSourceService_Discover(t *testing.T) {
	svc := newTestService(newMemoryStore(), idpFetcher())

	resp, err := svc.Discover(context.Background(), &models.DiscoverRequest{
		ProviderType:     "generic-oidc",
		OIDCWellKnownURL: idpWellKnown,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/auth", resp.AuthorizationURL)
	assert.Equal(t, idpJWKS, resp.OIDCJWKSURL)
	assert.Equal(t, "generic-oidc", resp.Type.Name)
	assert.Empty(t, resp.Keys)

	_, err = svc.Discover(context.Background(), &models.DiscoverRequest{})
	requireValidationError(t, err)
}

func TestOAuthSourceService_Update(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, idpFetcher())
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	t.Run("patch keeps secret and discovered values", func(t *testing.T) {
		name := "Corporate SSO"
		updated, err := svc.Update(ctx, "corp-sso", &models.UpdateOAuthSourceRequest{Name: &name}, false)
		require.NoError(t, err)

		assert.Equal(t, "Corporate SSO", updated.Name)
		assert.Equal(t, created.AuthorizationURL, updated.AuthorizationURL)
		assert.Equal(t, "secret", store.secrets[created.ID])
	})

	t.Run("new well-known url rediscovers endpoints", func(t *testing.T) {
		wellKnown := "https://other.example/.well-known/openid-configuration"
		secret := "rotated"
		updated, err := svc.Update(ctx, "corp-sso", &models.UpdateOAuthSourceRequest{
			OIDCWellKnownURL: &wellKnown,
			ConsumerSecret:   &secret,
		}, false)
		require.NoError(t, err)

		assert.Equal(t, "https://other.example/auth", updated.AuthorizationURL)
		assert.Empty(t, updated.OIDCJWKSURL, "no jwks_uri in the new document")
		assert.Empty(t, updated.OIDCJWKS)
		assert.Equal(t, "rotated", store.secrets[created.ID])
	})

	t.Run("put requires all fields", func(t *testing.T) {
		_, err := svc.Update(ctx, "corp-sso", &models.UpdateOAuthSourceRequest{}, true)
		requireValidationError(t, err)
	})

	t.Run("unknown slug", func(t *testing.T) {
		_, err := svc.Update(ctx, "missing", &models.UpdateOAuthSourceRequest{}, false)
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestOAuthSourceService_GetListDelete(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, idpFetcher())
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Slug, got.Slug)
	assert.NotEmpty(t, got.CallbackURL)

	bySlug, err := svc.GetBySlug(ctx, "corp-sso")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	list, err := svc.List(ctx, models.OAuthSourceFilter{Search: "corp"})
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, models.DefaultListLimit, list.Limit)
	assert.NotNil(t, list.Sources[0].Type)

	require.NoError(t, svc.Delete(ctx, "corp-sso"))

	_, err = svc.Get(ctx, created.ID)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.ErrorAs(t, svc.Delete(ctx, "corp-sso"), &nf)

	empty, err := svc.List(ctx, models.OAuthSourceFilter{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Sources)
	assert.Empty(t, empty.Sources)
}
