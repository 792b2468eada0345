package engine

import (
	"os"
	"strconv"
	"time"

	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Engine Configuration
//
// All tunables arrive through environment variables so deployment
// configuration stays external to the binary. Operator-facing knobs: worker
// count and memory budget for the content download pool, and the maximum
// chunk size for metadata sync.
// ============================================================================

// Config holds everything the sync engine needs for one run.
type Config struct {
	DatabasePath  string        // Mirror database file (NOTEMIRROR_DB_PATH)
	RemoteBaseURL string        // Base URL of the note service (NOTEMIRROR_REMOTE_URL)
	AuthToken     string        // Pre-acquired account token (NOTEMIRROR_AUTH_TOKEN)
	Workers       int           // Concurrent content downloads (NOTEMIRROR_DOWNLOAD_WORKERS)
	MemoryBudget  int64         // Bytes of in-flight bodies allowed (NOTEMIRROR_MEMORY_BUDGET)
	MaxChunkSize  int           // Max entries per sync chunk (NOTEMIRROR_MAX_CHUNK_SIZE)
	TasksEnabled  bool          // Sync the task/reminder stream too (NOTEMIRROR_SYNC_TASKS)
	HTTPTimeout   time.Duration // Per-request timeout override (NOTEMIRROR_HTTP_TIMEOUT)
}

// Defaults: modest parallelism and a budget small enough for constrained
// hosts; operators raise them for fat pipes.
const (
	defaultWorkers      = 4
	defaultMemoryBudget = 32 << 20 // 32 MiB
	defaultMaxChunkSize = 100
)

// LoadConfig reads engine configuration from environment variables,
// applying defaults for anything unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabasePath: "./data/mirror.ddb",
		Workers:      defaultWorkers,
		MemoryBudget: defaultMemoryBudget,
		MaxChunkSize: defaultMaxChunkSize,
	}

	if v := os.Getenv("NOTEMIRROR_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	cfg.RemoteBaseURL = os.Getenv("NOTEMIRROR_REMOTE_URL")
	cfg.AuthToken = os.Getenv("NOTEMIRROR_AUTH_TOKEN")

	if v := os.Getenv("NOTEMIRROR_DOWNLOAD_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, serr.Wrap(err, "invalid NOTEMIRROR_DOWNLOAD_WORKERS value, expected integer")
		}
		cfg.Workers = n
	}

	if v := os.Getenv("NOTEMIRROR_MEMORY_BUDGET"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, serr.Wrap(err, "invalid NOTEMIRROR_MEMORY_BUDGET value, expected bytes")
		}
		cfg.MemoryBudget = n
	}

	if v := os.Getenv("NOTEMIRROR_MAX_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, serr.Wrap(err, "invalid NOTEMIRROR_MAX_CHUNK_SIZE value, expected integer")
		}
		cfg.MaxChunkSize = n
	}

	if v := os.Getenv("NOTEMIRROR_SYNC_TASKS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, serr.Wrap(err, "invalid NOTEMIRROR_SYNC_TASKS value, expected true/false")
		}
		cfg.TasksEnabled = enabled
	}

	if v := os.Getenv("NOTEMIRROR_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, serr.Wrap(err, "invalid NOTEMIRROR_HTTP_TIMEOUT value, expected duration like '60s'")
		}
		cfg.HTTPTimeout = d
	}

	return cfg, nil
}

// Validate fails fast on misconfiguration rather than discovering it
// mid-sync.
func (c *Config) Validate() error {
	if c.RemoteBaseURL == "" {
		return serr.New("NOTEMIRROR_REMOTE_URL is required")
	}
	if c.AuthToken == "" {
		return serr.New("NOTEMIRROR_AUTH_TOKEN is required")
	}
	if c.Workers < 1 {
		return serr.New("NOTEMIRROR_DOWNLOAD_WORKERS must be at least 1")
	}
	if c.MemoryBudget < 1 {
		return serr.New("NOTEMIRROR_MEMORY_BUDGET must be positive")
	}
	if c.MaxChunkSize < 1 {
		return serr.New("NOTEMIRROR_MAX_CHUNK_SIZE must be at least 1")
	}
	return nil
}
