// Package secret abstracts the source a Collector reads its API keys from
// (the admin JWT signing secret is read from the environment directly, not
// through a Provider). The only implementation shipped here reads plain
// environment variables; a Vault-backed implementation (the reference
// deployment's actual secret store) can satisfy the same interface without
// any caller change.
package secret

import (
	"context"
	"os"
)

// Provider looks up a named secret. The bool return reports whether the
// key was found at all, distinguishing "absent" from "present but empty".
type Provider interface {
	Lookup(ctx context.Context, key string) (string, bool)
}

// EnvProvider reads secrets from the process environment.
type EnvProvider struct{}

// NewEnvProvider constructs the default, environment-backed Provider.
func NewEnvProvider() EnvProvider {
	return EnvProvider{}
}

func (EnvProvider) Lookup(_ context.Context, key string) (string, bool) {
	return os.LookupEnv(key)
}
