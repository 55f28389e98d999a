package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// Store is the external secret store contract: one get-secret-by-name
// operation. Failures are wrapped into pipeline.ErrSecretUnavailable.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// RedisStore resolves secrets from Redis string keys under a fixed prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed secret store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "secret:"}
}

// GetSecret fetches one secret value by name.
func (s *RedisStore) GetSecret(ctx context.Context, name string) (string, error) {
	val, err := s.client.Get(ctx, s.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: secret %q not found", pipeline.ErrSecretUnavailable, name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: secret store unreachable: %v", pipeline.ErrSecretUnavailable, err)
	}
	return val, nil
}

// EnvStore resolves secrets from environment variables for local runs
// without a secret store. The name "weatherapi/api-key" maps to
// WEATHERAPI_API_KEY.
type EnvStore struct{}

// GetSecret looks the secret up in the process environment.
func (EnvStore) GetSecret(_ context.Context, name string) (string, error) {
	key := strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name))
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%w: env secret %q (%s) not set", pipeline.ErrSecretUnavailable, name, key)
	}
	return val, nil
}
