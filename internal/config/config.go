package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type BestTimePolicy string

const (
	// PolicyOverwrite writes best_times on every submission, even a slower one.
	PolicyOverwrite BestTimePolicy = "overwrite"
	// PolicyKeepBest only writes best_times when the run beats the stored best.
	PolicyKeepBest BestTimePolicy = "keep-best"
)

type Config struct {
	Port        string
	Store       Store
	Leaderboard Leaderboard
	CORSOrigins []string
	MetricsUser string
	MetricsPass string
}

// Store holds the REST credentials of the key-value store.
type Store struct {
	URL     string
	Token   string
	Timeout time.Duration // 0 means no timeout
	MaxRPS  float64       // 0 means unlimited
}

type Leaderboard struct {
	BestTimePolicy BestTimePolicy
	AtomicSubmit   bool
	MaxLimit       int
}

// Configured reports whether both the store URL and token are present.
func (s Store) Configured() bool {
	return s.URL != "" && s.Token != ""
}

func (c Config) MetricsEnabled() bool {
	return c.MetricsUser != "" && c.MetricsPass != ""
}

func Load() Config {
	url, token := storeCredentials()

	return Config{
		Port: getEnv("PORT", "3333"),
		Store: Store{
			URL:     strings.TrimRight(url, "/"),
			Token:   token,
			Timeout: getEnvDuration("KV_TIMEOUT", 0),
			MaxRPS:  getEnvFloat("KV_MAX_RPS", 0),
		},
		Leaderboard: Leaderboard{
			BestTimePolicy: parsePolicy(os.Getenv("BEST_TIME_POLICY")),
			AtomicSubmit:   getEnvBool("ATOMIC_SUBMIT", false),
			MaxLimit:       getEnvInt("LEADERBOARD_MAX_LIMIT", 100),
		},
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MetricsUser: os.Getenv("METRICS_USER"),
		MetricsPass: os.Getenv("METRICS_PASS"),
	}
}

// storeCredentials returns the first pair where both values are set.
// Vercel KV names come first, then the raw Upstash names.
func storeCredentials() (string, string) {
	pairs := [][2]string{
		{"KV_REST_API_URL", "KV_REST_API_TOKEN"},
		{"UPSTASH_REDIS_REST_URL", "UPSTASH_REDIS_REST_TOKEN"},
	}
	for _, p := range pairs {
		url, token := os.Getenv(p[0]), os.Getenv(p[1])
		if url != "" && token != "" {
			return url, token
		}
	}
	return "", ""
}

func parsePolicy(v string) BestTimePolicy {
	switch BestTimePolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PolicyOverwrite:
		return PolicyOverwrite
	case PolicyKeepBest:
		return PolicyKeepBest
	default:
		log.Printf("Unknown BEST_TIME_POLICY %q, using %q", v, PolicyOverwrite)
		return PolicyOverwrite
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
