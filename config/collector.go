package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/contrived-com/arecibo/internal/secret"
)

// Collector holds the Collector control-plane's configuration, loaded
// from ARECIBO_* environment variables (api/src/config.py's Settings,
// translated).
type Collector struct {
	APIKeys        map[string]struct{}
	ForceGoDark    bool
	ForceGoDarkOn  map[string]struct{}
	PolicyTTLSec   int
	PolicyFile     string
	HTTPPort       int

	NATSURL     string // empty disables event fan-out
	NATSStream  string // empty uses eventbus.DefaultStreamName
	AuditDBDSN  string // empty disables the audit log
	AdminJWTSecret string
	AdminUsersRaw  string // "user:bcrypt-hash" pairs, comma-separated

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	TracingEnabled bool
	OTLPEndpoint   string
}

// LoadCollector reads Collector configuration from the environment,
// resolving API keys through provider first (so a Vault-backed
// secret.Provider can supply them in a real deployment) and falling back
// to ARECIBO_API_KEYS otherwise.
func LoadCollector(ctx context.Context, provider secret.Provider) (*Collector, error) {
	keysRaw, ok := provider.Lookup(ctx, "ARECIBO_API_KEYS")
	if !ok || strings.TrimSpace(keysRaw) == "" {
		keysRaw = getEnv("ARECIBO_API_KEYS", "")
	}
	keys := splitSet(keysRaw)
	if len(keys) == 0 {
		return nil, fmt.Errorf("config: ARECIBO_API_KEYS (or the configured secret provider) yielded no API keys")
	}

	ttl := getEnvInt("ARECIBO_POLICY_TTL_SEC", 60)
	if ttl < 5 {
		ttl = 5
	}

	return &Collector{
		APIKeys:       keys,
		ForceGoDark:   getEnvBool("ARECIBO_FORCE_GO_DARK", false),
		ForceGoDarkOn: getEnvStringSet("ARECIBO_FORCE_GO_DARK_ON"),
		PolicyTTLSec:  ttl,
		PolicyFile:    getEnv("ARECIBO_POLICY_FILE", ""),
		HTTPPort:      getEnvInt("ARECIBO_HTTP_PORT", 8080),

		NATSURL:        getEnv("ARECIBO_NATS_URL", ""),
		NATSStream:     getEnv("ARECIBO_NATS_STREAM", ""),
		AuditDBDSN:     getEnv("ARECIBO_AUDIT_DB_DSN", ""),
		AdminJWTSecret: getEnv("ARECIBO_ADMIN_JWT_SECRET", ""),
		AdminUsersRaw:  getEnv("ARECIBO_ADMIN_USERS", ""),

		TLSEnabled:  getEnvBool("ARECIBO_COLLECTOR_TLS_ENABLED", false),
		TLSCertFile: getEnv("ARECIBO_COLLECTOR_TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("ARECIBO_COLLECTOR_TLS_KEY_FILE", ""),

		TracingEnabled: getEnvBool("ARECIBO_COLLECTOR_TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("ARECIBO_COLLECTOR_OTLP_ENDPOINT", "localhost:4318"),
	}, nil
}

func splitSet(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out[item] = struct{}{}
		}
	}
	return out
}
