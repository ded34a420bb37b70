// config.go reads the serving layer's process configuration from the
// environment. The engine itself (pkg/kvengine) takes no environment
// variables directly; cmd/kvcached translates this Config into
// kvengine.Option values at startup. All fields are immutable once built.
//
// © 2025 kvshard authors. MIT License.
package httpapi

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config bundles every environment-sourced knob the boundary layer and the
// engine it wires need.
type Config struct {
	Port              int
	APIToken          string
	ReadRequiresAuth  bool
	Shards            int
	MaxItemBytes      int64
	MemoryBudgetBytes int64 // 0 means unset/unlimited
	RequestTimeout    time.Duration
	MaxInflight       int64
	MaxShardMailbox   int
	LogLevel          string
}

// FromEnv reads Config from the process environment, applying defaults
// for every optional variable. APIToken is the only required variable;
// its absence is a startup error, not a per-request one.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:             8080,
		Shards:           runtime.NumCPU(),
		MaxItemBytes:     256 << 20,
		RequestTimeout:   5 * time.Second,
		MaxInflight:      1 << 16,
		MaxShardMailbox:  1024,
		LogLevel:         "info",
		ReadRequiresAuth: false,
	}

	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("httpapi: invalid PORT %q: %w", v, err)
		}
		cfg.Port = n
	}

	cfg.APIToken = os.Getenv("API_TOKEN")
	if cfg.APIToken == "" {
		return Config{}, fmt.Errorf("httpapi: API_TOKEN is required")
	}

	if v := os.Getenv("READ_REQUIRES_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("httpapi: invalid READ_REQUIRES_AUTH %q: %w", v, err)
		}
		cfg.ReadRequiresAuth = b
	}

	if v := os.Getenv("SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("httpapi: invalid SHARDS %q", v)
		}
		cfg.Shards = n
	}

	if v := os.Getenv("MAX_ITEM_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("httpapi: invalid MAX_ITEM_BYTES %q", v)
		}
		cfg.MaxItemBytes = n
	}

	if v := os.Getenv("MEMORY_BUDGET_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("httpapi: invalid MEMORY_BUDGET_BYTES %q", v)
		}
		cfg.MemoryBudgetBytes = n
	}

	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 100 {
			return Config{}, fmt.Errorf("httpapi: REQUEST_TIMEOUT_MS must be >= 100, got %q", v)
		}
		cfg.RequestTimeout = time.Duration(n) * time.Millisecond
	}

	if v := os.Getenv("MAX_INFLIGHT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("httpapi: invalid MAX_INFLIGHT %q", v)
		}
		cfg.MaxInflight = n
	}

	if v := os.Getenv("MAX_SHARD_MAILBOX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("httpapi: invalid MAX_SHARD_MAILBOX %q", v)
		}
		cfg.MaxShardMailbox = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
