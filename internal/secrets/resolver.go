package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/pkg/cache"
	pkgsecrets "github.com/Checker-Finance/ticker-bots/pkg/secrets"
)

// Resolver fetches the service's secret bundle from a secrets provider,
// caching it locally to reduce API calls.
//
// Default secret naming convention: {env}/{service}
type Resolver struct {
	logger   *zap.Logger
	env      string
	service  string
	provider pkgsecrets.Provider
	cache    *cache.TTL[map[string]string]
}

// NewResolver constructs a resolver. ttl <= 0 caches for an hour.
func NewResolver(logger *zap.Logger, env, service string, provider pkgsecrets.Provider, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		logger:   logger,
		env:      env,
		service:  service,
		provider: provider,
		cache:    cache.New[map[string]string](ttl),
	}
}

// SecretName returns the conventional secret name for this service.
func (r *Resolver) SecretName() string {
	return strings.ToLower(fmt.Sprintf("%s/%s", r.env, r.service))
}

// Resolve returns the secret bundle stored under name, or under SecretName()
// when name is empty.
func (r *Resolver) Resolve(ctx context.Context, name string) (map[string]string, error) {
	if name == "" {
		name = r.SecretName()
	}

	if values, ok := r.cache.Get(name); ok {
		return values, nil
	}

	values, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return nil, fmt.Errorf("resolve secret %q: %w", name, err)
	}

	r.cache.Put(name, values)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	r.logger.Info("aws.secret_resolved",
		zap.String("key", name),
		zap.Strings("fields", keys))
	return values, nil
}
