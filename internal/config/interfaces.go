package config

import "context"

// SecretProvider resolves secret parameter paths to plaintext values. The SSM
// implementation is used outside local development; EnvVarProvider reads the
// process environment.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every key it could
	// resolve. Unknown keys are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
