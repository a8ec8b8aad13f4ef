package config

import (
	"os"
	"strings"
)

// Agent holds the Agent sidecar's configuration, loaded from
// ARECIBO_AGENT_* environment variables (plus the unprefixed identity
// variables shared with surrounding deployment tooling).
type Agent struct {
	APIKey              string
	CollectorCandidates []string
	ProbeTimeout        int // seconds
	HTTPTimeout         int // seconds

	ServiceName string
	Environment string
	Repository  string
	CommitSHA   string
	InstanceID  string
	Hostname    string

	HeartbeatIntervalSec    int
	HeartbeatMinIntervalSec int
	PolicyRefreshJitterSec  int
	EventsFlushIntervalSec  int
	MaxEventQueueDepth      int
	MaxBatchSize            int

	IngestSocketEnabled     bool
	IngestSocketPath        string
	IngestSocketBufferBytes int

	TracingEnabled bool
	OTLPEndpoint   string
}

// heartbeatMinIntervalSec is a hard floor independent of configuration:
// no env var, directive, or policy may push the effective heartbeat
// interval below this.
const heartbeatMinIntervalSec = 5

// LoadAgent reads Agent configuration from the environment.
func LoadAgent() *Agent {
	candidates := dedupeCandidates(collectorCandidates())

	hostname := getEnv("HOSTNAME", "")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	heartbeat := getEnvInt("ARECIBO_AGENT_HEARTBEAT_INTERVAL_SEC", 30)
	if heartbeat < heartbeatMinIntervalSec {
		heartbeat = heartbeatMinIntervalSec
	}

	flush := getEnvInt("ARECIBO_AGENT_EVENTS_FLUSH_INTERVAL_SEC", 5)
	if flush < 1 {
		flush = 1
	}
	maxDepth := getEnvInt("ARECIBO_AGENT_MAX_EVENT_QUEUE_DEPTH", 10000)
	if maxDepth < 1 {
		maxDepth = 1
	}
	maxBatch := getEnvInt("ARECIBO_AGENT_MAX_BATCH_SIZE", 1000)
	if maxBatch < 1 {
		maxBatch = 1
	}
	bufferBytes := getEnvInt("ARECIBO_AGENT_INGEST_SOCKET_BUFFER_BYTES", 65535)
	if bufferBytes < 1024 {
		bufferBytes = 1024
	}

	return &Agent{
		APIKey:              strings.TrimSpace(getEnv("ARECIBO_AGENT_API_KEY", "")),
		CollectorCandidates: candidates,
		ProbeTimeout:        getEnvInt("ARECIBO_AGENT_PROBE_TIMEOUT_SEC", 1),
		HTTPTimeout:         getEnvInt("ARECIBO_AGENT_HTTP_TIMEOUT_SEC", 2),

		ServiceName: getEnv("SERVICE_NAME", "unknown-service"),
		Environment: getEnv("ENVIRONMENT", "unknown"),
		Repository:  getEnv("GIT_REPOSITORY", "unknown-repository"),
		CommitSHA:   getEnv("GIT_COMMIT", "unknown"),
		InstanceID:  getEnv("ARECIBO_AGENT_INSTANCE_ID", hostname),
		Hostname:    hostname,

		HeartbeatIntervalSec:    heartbeat,
		HeartbeatMinIntervalSec: heartbeatMinIntervalSec,
		PolicyRefreshJitterSec:  getEnvInt("ARECIBO_AGENT_POLICY_REFRESH_JITTER_SEC", 2),
		EventsFlushIntervalSec:  flush,
		MaxEventQueueDepth:      maxDepth,
		MaxBatchSize:            maxBatch,

		IngestSocketEnabled:     getEnvBool("ARECIBO_AGENT_INGEST_SOCKET_ENABLED", true),
		IngestSocketPath:        getEnv("ARECIBO_AGENT_INGEST_SOCKET_PATH", "/tmp/arecibo-ingest.sock"),
		IngestSocketBufferBytes: bufferBytes,

		TracingEnabled: getEnvBool("ARECIBO_AGENT_TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("ARECIBO_AGENT_OTLP_ENDPOINT", "localhost:4318"),
	}
}

// collectorCandidates builds the ordered candidate list: the pinned
// ARECIBO_AGENT_COLLECTOR_URL override (if set) goes first, followed by
// the comma-separated ARECIBO_AGENT_COLLECTOR_CANDIDATES list, each entry
// trimmed and stripped of a trailing slash.
func collectorCandidates() []string {
	var out []string

	if override := strings.TrimSuffix(strings.TrimSpace(getEnv("ARECIBO_AGENT_COLLECTOR_URL", "")), "/"); override != "" {
		out = append(out, override)
	}

	for _, raw := range strings.Split(getEnv("ARECIBO_AGENT_COLLECTOR_CANDIDATES", ""), ",") {
		value := strings.TrimSuffix(strings.TrimSpace(raw), "/")
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func dedupeCandidates(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
