package secrets

import (
	"context"
	"fmt"
)

// MakerCredentials hold the API key for the market-maker venue.
type MakerCredentials struct {
	APIKey string `json:"api_key"`
}

// Resolver resolves the maker API key through a Provider with a TTL cache.
// When no secret name is configured it falls back to a static key (dev).
type Resolver struct {
	provider   Provider
	cache      *Cache[MakerCredentials]
	secretName string
	staticKey  string
}

// NewResolver builds a resolver. provider may be nil when only the static
// fallback is desired.
func NewResolver(provider Provider, cache *Cache[MakerCredentials], secretName, staticKey string) *Resolver {
	return &Resolver{
		provider:   provider,
		cache:      cache,
		secretName: secretName,
		staticKey:  staticKey,
	}
}

// APIKey returns the current maker API key. Satisfies the maker client's
// CredentialSource.
func (r *Resolver) APIKey(ctx context.Context) (string, error) {
	if r.secretName == "" || r.provider == nil {
		if r.staticKey == "" {
			return "", fmt.Errorf("no maker credentials configured")
		}
		return r.staticKey, nil
	}

	if creds, ok := r.cache.Get(r.secretName); ok {
		return creds.APIKey, nil
	}

	raw, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		return "", fmt.Errorf("resolve maker secret: %w", err)
	}
	key, ok := raw["api_key"]
	if !ok || key == "" {
		return "", fmt.Errorf("secret [%s] missing api_key", r.secretName)
	}

	r.cache.Put(r.secretName, MakerCredentials{APIKey: key})
	return key, nil
}
