package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"
	"sjsage522/srpauditor/services/store"
)

const keyPrefix = "selectors:"

// StoreKey returns the store key holding the config for domain
func StoreKey(domain string) string {
	return keyPrefix + NormalizeHost(domain)
}

// Registry resolves per-domain selector configs from the persistent store.
// Resolved configs are cached for the lifetime of the registry (one page
// session) until Save or Invalidate drops them.
type Registry struct {
	store store.Store
	mu    sync.Mutex
	cache map[string]Config
	log   *logger.Logger
}

// NewRegistry creates a registry backed by s
func NewRegistry(s store.Store) *Registry {
	return &Registry{
		store: s,
		cache: make(map[string]Config),
		log:   logger.ForComponent("selectors"),
	}
}

// Resolve returns the config for domain: domain entry, then the global
// entry, then an empty config.
func (r *Registry) Resolve(ctx context.Context, domain string) (Config, error) {
	host := NormalizeHost(domain)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.cache[host]; ok {
		return cfg.Clone(), nil
	}

	for _, candidate := range []string{host, GlobalDomain} {
		if candidate == "" {
			continue
		}
		cfg, err := r.load(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		r.log.Debug().
			Str("domain", host).
			Str("source", candidate).
			Int("selectors", len(cfg)).
			Msg("Resolved selector config")
		r.cache[host] = cfg
		return cfg.Clone(), nil
	}

	r.log.Warn().Str("domain", host).Msg("No selector config found, using empty config")
	r.cache[host] = Config{}
	return Config{}, nil
}

func (r *Registry) load(ctx context.Context, domain string) (Config, error) {
	data, err := r.store.Get(ctx, keyPrefix+domain)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, apperrors.NewStore(fmt.Sprintf("failed to read selectors for %s", domain), err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.NewConfiguration(fmt.Sprintf("selector config for %s is not a JSON object", domain), err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

// Save persists cfg for domain and drops the cached entry
func (r *Registry) Save(ctx context.Context, domain string, cfg Config) error {
	host := NormalizeHost(domain)
	if host == "" {
		return apperrors.NewConfiguration("domain is required", nil)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, keyPrefix+host, data); err != nil {
		return apperrors.NewStore(fmt.Sprintf("failed to save selectors for %s", host), err)
	}

	r.Invalidate(host)
	return nil
}

// Invalidate drops the cached config for domain. Invalidating the global
// entry drops every cached config since any of them may have come from it.
func (r *Registry) Invalidate(domain string) {
	host := NormalizeHost(domain)

	r.mu.Lock()
	defer r.mu.Unlock()

	if host == GlobalDomain {
		r.cache = make(map[string]Config)
		return
	}
	delete(r.cache, host)
}

// Require returns a ConfigurationError naming the first missing key.
// vehicleCard is always mandatory.
func Require(domain string, cfg Config, keys ...string) error {
	required := append([]string{KeyVehicleCard}, keys...)
	for _, key := range required {
		if !cfg.Has(key) {
			return apperrors.NewMissingSelector(NormalizeHost(domain), key)
		}
	}
	return nil
}
