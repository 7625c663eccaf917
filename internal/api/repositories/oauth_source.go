// Package repositories provides data access layer for API resources.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/crypto"
)

// OAuth source repository errors.
var (
	ErrOAuthSourceNotFound   = errors.New("oauth source not found")
	ErrOAuthSourceSlugExists = errors.New("oauth source with this slug already exists")
	ErrOAuthSourceNameExists = errors.New("oauth source with this name already exists")
	ErrNoConsumerSecret      = errors.New("oauth source has no consumer secret")
)

const uniqueViolationCode = "23505"

const oauthSourceColumns = `
	id, name, slug, enabled, provider_type,
	request_token_url, authorization_url, access_token_url, profile_url,
	consumer_key, additional_scopes,
	oidc_well_known_url, oidc_jwks_url, oidc_jwks,
	authorization_code_auth_method, user_matching_mode, group_matching_mode, policy_engine_mode,
	jwks_refreshed_at, created_at, updated_at`

// OAuthSourceRepository handles database operations for OAuth sources. The
// consumer secret is sealed with the source ID as associated data.
type OAuthSourceRepository struct {
	db        *sql.DB
	encryptor *crypto.Encryptor
}

// NewOAuthSourceRepository creates a new OAuthSourceRepository.
func NewOAuthSourceRepository(db *sql.DB, encryptor *crypto.Encryptor) *OAuthSourceRepository {
	return &OAuthSourceRepository{db: db, encryptor: encryptor}
}

// oauthSourceRow represents a database row for an OAuth source.
type oauthSourceRow struct {
	ID                          uuid.UUID
	Name                        string
	Slug                        string
	Enabled                     bool
	ProviderType                string
	RequestTokenURL             sql.NullString
	AuthorizationURL            sql.NullString
	AccessTokenURL              sql.NullString
	ProfileURL                  sql.NullString
	ConsumerKey                 string
	AdditionalScopes            string
	OIDCWellKnownURL            string
	OIDCJWKSURL                 string
	OIDCJWKS                    []byte
	AuthorizationCodeAuthMethod string
	UserMatchingMode            string
	GroupMatchingMode           string
	PolicyEngineMode            string
	JWKSRefreshedAt             sql.NullTime
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOAuthSource(s rowScanner) (*oauthSourceRow, error) {
	var row oauthSourceRow
	err := s.Scan(
		&row.ID,
		&row.Name,
		&row.Slug,
		&row.Enabled,
		&row.ProviderType,
		&row.RequestTokenURL,
		&row.AuthorizationURL,
		&row.AccessTokenURL,
		&row.ProfileURL,
		&row.ConsumerKey,
		&row.AdditionalScopes,
		&row.OIDCWellKnownURL,
		&row.OIDCJWKSURL,
		&row.OIDCJWKS,
		&row.AuthorizationCodeAuthMethod,
		&row.UserMatchingMode,
		&row.GroupMatchingMode,
		&row.PolicyEngineMode,
		&row.JWKSRefreshedAt,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// toModel converts a database row to an API model.
func (r *oauthSourceRow) toModel() (*models.OAuthSource, error) {
	jwks := map[string]any{}
	if len(r.OIDCJWKS) > 0 {
		if err := json.Unmarshal(r.OIDCJWKS, &jwks); err != nil {
			return nil, fmt.Errorf("failed to decode oidc_jwks: %w", err)
		}
	}

	src := &models.OAuthSource{
		ID:                          r.ID,
		Name:                        r.Name,
		Slug:                        r.Slug,
		Enabled:                     r.Enabled,
		ProviderType:                r.ProviderType,
		RequestTokenURL:             r.RequestTokenURL.String,
		AuthorizationURL:            r.AuthorizationURL.String,
		AccessTokenURL:              r.AccessTokenURL.String,
		ProfileURL:                  r.ProfileURL.String,
		ConsumerKey:                 r.ConsumerKey,
		AdditionalScopes:            r.AdditionalScopes,
		OIDCWellKnownURL:            r.OIDCWellKnownURL,
		OIDCJWKSURL:                 r.OIDCJWKSURL,
		OIDCJWKS:                    jwks,
		AuthorizationCodeAuthMethod: models.AuthorizationCodeAuthMethod(r.AuthorizationCodeAuthMethod),
		UserMatchingMode:            models.UserMatchingMode(r.UserMatchingMode),
		GroupMatchingMode:           models.GroupMatchingMode(r.GroupMatchingMode),
		PolicyEngineMode:            models.PolicyEngineMode(r.PolicyEngineMode),
		CreatedAt:                   r.CreatedAt,
		UpdatedAt:                   r.UpdatedAt,
	}
	if r.JWKSRefreshedAt.Valid {
		t := r.JWKSRefreshedAt.Time
		src.JWKSRefreshedAt = &t
	}
	return src, nil
}

// Create inserts a source. A new ID is assigned when src.ID is zero.
func (r *OAuthSourceRepository) Create(ctx context.Context, src *models.OAuthSource, consumerSecret string) (*models.OAuthSource, error) {
	id := src.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	sealed, err := r.encryptor.Seal(consumerSecret, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt consumer secret: %w", err)
	}
	jwks, err := encodeJWKS(src.OIDCJWKS)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO oauth_sources (
			id, name, slug, enabled, provider_type,
			request_token_url, authorization_url, access_token_url, profile_url,
			consumer_key, consumer_secret_encrypted, additional_scopes,
			oidc_well_known_url, oidc_jwks_url, oidc_jwks,
			authorization_code_auth_method, user_matching_mode, group_matching_mode, policy_engine_mode,
			jwks_refreshed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			CASE WHEN $14 <> '' THEN NOW() END)
		RETURNING ` + oauthSourceColumns

	row, err := scanOAuthSource(r.db.QueryRowContext(ctx, query,
		id,
		src.Name,
		src.Slug,
		src.Enabled,
		src.ProviderType,
		nullString(src.RequestTokenURL),
		nullString(src.AuthorizationURL),
		nullString(src.AccessTokenURL),
		nullString(src.ProfileURL),
		src.ConsumerKey,
		sealed,
		src.AdditionalScopes,
		src.OIDCWellKnownURL,
		src.OIDCJWKSURL,
		jwks,
		string(src.AuthorizationCodeAuthMethod),
		string(src.UserMatchingMode),
		string(src.GroupMatchingMode),
		string(src.PolicyEngineMode),
	))
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to create oauth source: %w", err)
	}

	return row.toModel()
}

// GetByID retrieves a source by its ID.
func (r *OAuthSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.OAuthSource, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug retrieves a source by its slug.
func (r *OAuthSourceRepository) GetBySlug(ctx context.Context, slug string) (*models.OAuthSource, error) {
	return r.getOne(ctx, "slug = $1", slug)
}

func (r *OAuthSourceRepository) getOne(ctx context.Context, where string, arg any) (*models.OAuthSource, error) {
	query := `SELECT ` + oauthSourceColumns + ` FROM oauth_sources WHERE ` + where

	row, err := scanOAuthSource(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOAuthSourceNotFound
		}
		return nil, fmt.Errorf("failed to get oauth source: %w", err)
	}
	return row.toModel()
}

// GetConsumerSecret decrypts the stored consumer secret of a source.
func (r *OAuthSourceRepository) GetConsumerSecret(ctx context.Context, id uuid.UUID) (string, error) {
	var sealed []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT consumer_secret_encrypted FROM oauth_sources WHERE id = $1`, id,
	).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrOAuthSourceNotFound
		}
		return "", fmt.Errorf("failed to get consumer secret: %w", err)
	}
	if len(sealed) == 0 {
		return "", ErrNoConsumerSecret
	}
	return r.encryptor.Open(sealed, id.String())
}

// List retrieves sources matching the filter, ordered by name, together
// with the total number of matches.
func (r *OAuthSourceRepository) List(ctx context.Context, filter models.OAuthSourceFilter) ([]models.OAuthSource, int, error) {
	filter.Normalize()
	where, args := buildOAuthSourceWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_sources`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count oauth sources: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM oauth_sources%s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		oauthSourceColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	sources, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list oauth sources: %w", err)
	}
	return sources, total, nil
}

// ListJWKSTargets returns enabled sources that have a key set URL.
func (r *OAuthSourceRepository) ListJWKSTargets(ctx context.Context) ([]models.OAuthSource, error) {
	query := `SELECT ` + oauthSourceColumns + `
		FROM oauth_sources
		WHERE enabled AND oidc_jwks_url <> ''
		ORDER BY jwks_refreshed_at ASC NULLS FIRST`

	sources, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jwks targets: %w", err)
	}
	return sources, nil
}

func (r *OAuthSourceRepository) query(ctx context.Context, query string, args ...any) ([]models.OAuthSource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.OAuthSource
	for rows.Next() {
		row, err := scanOAuthSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan oauth source: %w", err)
		}
		src, err := row.toModel()
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating oauth sources: %w", err)
	}
	return sources, nil
}

// Update writes every mutable column of src. A nil consumerSecret keeps the
// stored secret.
func (r *OAuthSourceRepository) Update(ctx context.Context, src *models.OAuthSource, consumerSecret *string) (*models.OAuthSource, error) {
	var sealed []byte
	if consumerSecret != nil {
		var err error
		sealed, err = r.encryptor.Seal(*consumerSecret, src.ID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt consumer secret: %w", err)
		}
	}
	jwks, err := encodeJWKS(src.OIDCJWKS)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE oauth_sources SET
			name = $2, slug = $3, enabled = $4, provider_type = $5,
			request_token_url = $6, authorization_url = $7, access_token_url = $8, profile_url = $9,
			consumer_key = $10,
			consumer_secret_encrypted = COALESCE($11, consumer_secret_encrypted),
			additional_scopes = $12,
			oidc_well_known_url = $13, oidc_jwks_url = $14, oidc_jwks = $15,
			authorization_code_auth_method = $16, user_matching_mode = $17,
			group_matching_mode = $18, policy_engine_mode = $19,
			jwks_refreshed_at = CASE
				WHEN oidc_jwks <> $15::jsonb THEN NOW()
				ELSE jwks_refreshed_at
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + oauthSourceColumns

	row, err := scanOAuthSource(r.db.QueryRowContext(ctx, query,
		src.ID,
		src.Name,
		src.Slug,
		src.Enabled,
		src.ProviderType,
		nullString(src.RequestTokenURL),
		nullString(src.AuthorizationURL),
		nullString(src.AccessTokenURL),
		nullString(src.ProfileURL),
		src.ConsumerKey,
		sealed,
		src.AdditionalScopes,
		src.OIDCWellKnownURL,
		src.OIDCJWKSURL,
		jwks,
		string(src.AuthorizationCodeAuthMethod),
		string(src.UserMatchingMode),
		string(src.GroupMatchingMode),
		string(src.PolicyEngineMode),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOAuthSourceNotFound
		}
		if conflict := uniqueConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to update oauth source: %w", err)
	}

	return row.toModel()
}

// UpdateJWKS stores a freshly fetched key set.
func (r *OAuthSourceRepository) UpdateJWKS(ctx context.Context, id uuid.UUID, jwks map[string]any, refreshedAt time.Time) error {
	encoded, err := encodeJWKS(jwks)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE oauth_sources SET oidc_jwks = $2, jwks_refreshed_at = $3, updated_at = NOW() WHERE id = $1`,
		id, encoded, refreshedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update jwks: %w", err)
	}
	return requireAffected(result)
}

// Delete deletes a source.
func (r *OAuthSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oauth_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete oauth source: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOAuthSourceNotFound
	}
	return nil
}

// buildOAuthSourceWhere renders the filter as a WHERE clause with positional
// arguments.
func buildOAuthSourceWhere(f models.OAuthSourceFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Search != "" {
		add("(name ILIKE $%[1]d OR slug ILIKE $%[1]d)", "%"+escapeLike(f.Search)+"%")
	}
	if f.Name != "" {
		add("name = $%d", f.Name)
	}
	if f.Slug != "" {
		add("slug = $%d", f.Slug)
	}
	if f.Enabled != nil {
		add("enabled = $%d", *f.Enabled)
	}
	if len(f.ProviderTypes) > 0 {
		add("provider_type = ANY($%d)", pq.Array(f.ProviderTypes))
	}
	if f.HasJWKS != nil {
		if *f.HasJWKS {
			conds = append(conds, "oidc_jwks <> '{}'::jsonb")
		} else {
			conds = append(conds, "oidc_jwks = '{}'::jsonb")
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func encodeJWKS(jwks map[string]any) (string, error) {
	if jwks == nil {
		return "{}", nil
	}
	b, err := json.Marshal(jwks)
	if err != nil {
		return "", fmt.Errorf("failed to encode oidc_jwks: %w", err)
	}
	return string(b), nil
}

// nullString converts a string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// uniqueConflict maps a unique violation to the matching sentinel error.
func uniqueConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}
	switch pgErr.ConstraintName {
	case "oauth_sources_slug_key":
		return ErrOAuthSourceSlugExists
	case "oauth_sources_name_key":
		return ErrOAuthSourceNameExists
	default:
		return ErrOAuthSourceSlugExists
	}
}
