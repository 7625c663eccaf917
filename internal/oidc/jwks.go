package oidc

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// KeySummary describes one key of a JWKS document.
type KeySummary struct {
	KeyID     string `json:"kid,omitempty"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg,omitempty"`
	Use       string `json:"use,omitempty"`
	Public    bool   `json:"public"`
}

// InspectJWKS parses a fetched JWKS document and summarizes its keys. The
// document itself is stored verbatim; this is used for logging and previews.
func InspectJWKS(doc map[string]any) ([]KeySummary, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key set: %w", err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}

	summaries := make([]KeySummary, 0, len(set.Keys))
	for _, key := range set.Keys {
		summaries = append(summaries, KeySummary{
			KeyID:     key.KeyID,
			KeyType:   keyType(key.Key),
			Algorithm: key.Algorithm,
			Use:       key.Use,
			Public:    key.IsPublic(),
		})
	}

	return summaries, nil
}

func keyType(key any) string {
	switch key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return "RSA"
	case *ecdsa.PublicKey, *ecdsa.PrivateKey:
		return "EC"
	case ed25519.PublicKey, ed25519.PrivateKey:
		return "OKP"
	case []byte:
		return "oct"
	default:
		return "unknown"
	}
}
