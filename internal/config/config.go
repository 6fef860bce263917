// Package config provides controller configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds controller configuration. Values come from env vars or defaults.
type Config struct {
	// --- Kubernetes ---

	// Namespace restricts reconciliation to a single namespace (env:
	// NAMESPACE). Empty watches every namespace the client is
	// authorized for.
	Namespace string

	// KubeConfig is the path to kubeconfig file (env: KUBECONFIG).
	// Empty means use in-cluster config.
	KubeConfig string

	// --- Reconciliation ---

	// ResyncInterval is how often the informer factory does a full
	// relist, catching any watch event missed by the workqueue (env:
	// RESYNC_INTERVAL). Default: 10m.
	ResyncInterval time.Duration

	// MonitorInterval is the poll period of the drift-detection daemon
	// over Django objects at migration-step=ready (env: MONITOR_INTERVAL).
	// Default: 120s.
	MonitorInterval time.Duration

	// Workers is the number of workqueue worker goroutines (env:
	// WORKER_COUNT). Default: 2.
	Workers int

	// --- Manifests ---

	// ManifestDir overrides the embedded template directory with an
	// on-disk one (env: MANIFEST_DIR). Empty uses the compiled-in
	// templates.
	ManifestDir string

	// --- Leader Election ---

	// LeaderElection enables K8s lease-based leader election (env:
	// ENABLE_LEADER_ELECTION). When true, only the leader replica
	// reconciles; others wait passively.
	LeaderElection bool

	// LeaderElectionID is the name of the Lease resource used for leader
	// election (env: LEADER_ELECTION_ID). Default: "django-operator-leader".
	LeaderElectionID string

	// LeaderElectionIdentity is the unique identity of this controller
	// instance (env: POD_NAME). Typically set from the Kubernetes
	// downward API. Default: hostname.
	LeaderElectionIdentity string

	// --- Controller ---

	// LogLevel controls log verbosity: debug, info, warn, error (env: LOG_LEVEL).
	LogLevel string

	// HealthAddr is the address the health/metrics HTTP server listens
	// on (env: HEALTH_ADDR). Default: ":8081".
	HealthAddr string
}

// Parse reads configuration from environment variables.
func Parse() *Config {
	return &Config{
		Namespace:  os.Getenv("NAMESPACE"),
		KubeConfig: os.Getenv("KUBECONFIG"),

		ResyncInterval:  envDurationOr("RESYNC_INTERVAL", 10*time.Minute),
		MonitorInterval: envDurationOr("MONITOR_INTERVAL", 120*time.Second),
		Workers:         envIntOr("WORKER_COUNT", 2),

		ManifestDir: os.Getenv("MANIFEST_DIR"),

		LeaderElection:         envBoolOr("ENABLE_LEADER_ELECTION", false),
		LeaderElectionID:       envOr("LEADER_ELECTION_ID", "django-operator-leader"),
		LeaderElectionIdentity: envOr("POD_NAME", hostname()),

		LogLevel:   envOr("LOG_LEVEL", "info"),
		HealthAddr: envOr("HEALTH_ADDR", ":8081"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
