package classify

import (
	"context"
	"errors"
	"strings"

	apperrors "sjsage522/srpauditor/pkg/errors"
	"sjsage522/srpauditor/services/store"
)

const apiKeyPrefix = "api_key:"

// APIKeyStoreKey returns the store key holding the API key of provider
func APIKeyStoreKey(provider string) string {
	return apiKeyPrefix + strings.ToLower(strings.TrimSpace(provider))
}

// ResolveAPIKey prefers the configured key and falls back to the one saved
// in the store. A missing key is not an error here; CheckReady reports it.
func ResolveAPIKey(ctx context.Context, s store.Store, provider, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	data, err := s.Get(ctx, APIKeyStoreKey(provider))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.NewStore("failed to read "+provider+" api key", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveAPIKey stores the API key of provider; an empty key deletes it
func SaveAPIKey(ctx context.Context, s store.Store, provider, key string) error {
	var err error
	if key = strings.TrimSpace(key); key == "" {
		err = s.Delete(ctx, APIKeyStoreKey(provider))
	} else {
		err = s.Set(ctx, APIKeyStoreKey(provider), []byte(key))
	}
	if err != nil {
		return apperrors.NewStore("failed to save "+provider+" api key", err)
	}
	return nil
}
