// Package secrets resolves named credentials for the current environment.
// Local and testing environments read straight from process environment
// variables; staging and production fetch a JSON secret blob from AWS
// Secrets Manager and serve lookups from an explicit in-process cache.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/config"
)

// Resolver supplies named credential values. A missing secret resolves to
// the empty string; errors are reserved for store failures.
type Resolver interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvResolver reads secrets from process environment variables.
type EnvResolver struct{}

// Get returns the environment variable value for name.
func (EnvResolver) Get(_ context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// managerAPI captures the Secrets Manager call the resolver depends on.
type managerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ManagerResolver fetches a JSON secret blob from AWS Secrets Manager and
// answers lookups from a Cache. Individual names missing from the blob fall
// back to environment variables, matching local behavior.
type ManagerResolver struct {
	client    managerAPI
	secretARN string
	cache     *Cache
}

// NewManagerResolver constructs a ManagerResolver with the given cache.
func NewManagerResolver(client managerAPI, secretARN string, cache *Cache) *ManagerResolver {
	return &ManagerResolver{client: client, secretARN: secretARN, cache: cache}
}

// Get resolves a secret by name, loading the blob on first use or after the
// cache expires.
func (r *ManagerResolver) Get(ctx context.Context, name string) (string, error) {
	values, ok := r.cache.Values()
	if !ok {
		loaded, errLoad := r.load(ctx)
		if errLoad != nil {
			return "", errLoad
		}
		r.cache.Store(loaded)
		values = loaded
	}
	if v, found := values[name]; found {
		return v, nil
	}
	return os.Getenv(name), nil
}

// load fetches and decodes the secret blob.
func (r *ManagerResolver) load(ctx context.Context) (map[string]string, error) {
	out, errGet := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(r.secretARN),
	})
	if errGet != nil {
		return nil, fmt.Errorf("secrets: get secret value: %w", errGet)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secrets: secret %s has no string payload", r.secretARN)
	}
	var values map[string]string
	if errUnmarshal := json.Unmarshal([]byte(*out.SecretString), &values); errUnmarshal != nil {
		return nil, fmt.Errorf("secrets: decode secret payload: %w", errUnmarshal)
	}
	return values, nil
}

// NewResolver builds the resolver for the current environment. Without a
// configured secret ARN the managed store is skipped and environment
// variables are used directly.
func NewResolver(ctx context.Context, env config.Environment, cache *Cache) (Resolver, error) {
	if env.UsesEnvSecrets() {
		return EnvResolver{}, nil
	}

	secretARN := strings.TrimSpace(os.Getenv(config.EnvSecretManagerARN))
	if secretARN == "" {
		log.Warn("secrets: no secret manager ARN configured, falling back to environment variables")
		return EnvResolver{}, nil
	}

	awsCfg, errLoad := awsconfig.LoadDefaultConfig(ctx)
	if errLoad != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", errLoad)
	}
	return NewManagerResolver(secretsmanager.NewFromConfig(awsCfg), secretARN, cache), nil
}
