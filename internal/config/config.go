// Package config provides configuration management for recollect.
// Settings come from built-in defaults, optionally overlaid by a YAML file
// (RECOLLECT_CONFIG), and finally by environment variables with the
// RECOLLECT_ prefix. Environment variables always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the recollect application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Models    ModelsConfig    `yaml:"models"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Remote    RemoteConfig    `yaml:"remote"`
	Security  SecurityConfig  `yaml:"security"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7474)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine       string `yaml:"engine"`        // sqlite, postgres or memory (default: sqlite)
	DataPath     string `yaml:"data_path"`     // Path to data directory (default: ./data)
	PostgresDSN  string `yaml:"postgres_dsn"`  // Required when Engine is postgres
	VectorEngine string `yaml:"vector_engine"` // Empty to reuse Engine, or chromem
}

// ModelsConfig selects and configures the model providers.
type ModelsConfig struct {
	TextProvider          string `yaml:"text_provider"`          // ollama, openai, anthropic, gemini (default: ollama)
	EmbeddingProvider     string `yaml:"embedding_provider"`     // ollama, openai, gemini (default: ollama)
	VisionProvider        string `yaml:"vision_provider"`        // ollama, gemini (default: ollama)
	TranscriptionProvider string `yaml:"transcription_provider"` // whisper, gemini, none (default: whisper)

	OllamaURL            string `yaml:"ollama_url"`             // default: http://localhost:11434
	OllamaModel          string `yaml:"ollama_model"`           // default: qwen2.5:7b
	OllamaEmbeddingModel string `yaml:"ollama_embedding_model"` // default: nomic-embed-text
	OllamaVisionModel    string `yaml:"ollama_vision_model"`    // default: llava:7b

	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`        // default: https://api.openai.com/v1
	OpenAIModel          string `yaml:"openai_model"`           // default: gpt-4o-mini
	OpenAIEmbeddingModel string `yaml:"openai_embedding_model"` // default: text-embedding-3-small

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"` // default: claude-3-5-sonnet-20241022

	GeminiAPIKey         string `yaml:"gemini_api_key"`
	GeminiModel          string `yaml:"gemini_model"`           // default: gemini-2.0-flash
	GeminiEmbeddingModel string `yaml:"gemini_embedding_model"` // default: text-embedding-004

	WhisperAPIKey  string `yaml:"whisper_api_key"`  // Falls back to OpenAIAPIKey
	WhisperBaseURL string `yaml:"whisper_base_url"` // OpenAI-compatible, e.g. https://api.groq.com/openai/v1
	WhisperModel   string `yaml:"whisper_model"`    // default: whisper-1

	EmbeddingDimension int           `yaml:"embedding_dimension"` // 0 keeps the model default
	RequestTimeout     time.Duration `yaml:"request_timeout"`     // default: 60s
}

// RetrievalConfig tunes the retrieval hierarchy and the analysis pipeline.
type RetrievalConfig struct {
	StaleThreshold   float64       `yaml:"stale_threshold"`   // Object hits need effective confidence >= this (default: 0.3)
	HighConfidence   float64       `yaml:"high_confidence"`   // Above this an object hit is High (default: 0.7)
	DecayRate        float64       `yaml:"decay_rate"`        // Per-day decay rate (default: 0.1)
	VectorTopK       int           `yaml:"vector_top_k"`      // default: 20
	MinSimilarity    float64       `yaml:"min_similarity"`    // default: 0.3
	SynthesisRecords int           `yaml:"synthesis_records"` // Records passed to the synthesizer (default: 5)
	StepTimeout      time.Duration `yaml:"step_timeout"`      // Bound on each external call (default: 30s)
	AnalysisBatch    int           `yaml:"analysis_batch"`    // Concurrent records per re-analysis batch (default: 3)
	ConceptsFile     string        `yaml:"concepts_file"`     // Optional YAML file replacing the built-in concept table
	EmbeddingCache   int64         `yaml:"embedding_cache"`   // Max cached query embeddings, 0 disables (default: 1000)
}

// RemoteConfig enables server-delegated retrieval (centralized mode).
type RemoteConfig struct {
	URL          string        `yaml:"url"`           // Empty disables centralized mode
	APIToken     string        `yaml:"api_token"`     // Bearer token sent to the remote server
	UserID       string        `yaml:"user_id"`       // Owner the remote lookup is scoped to
	Timeout      time.Duration `yaml:"timeout"`       // Strict lookup timeout (default: 10s)
	PollInterval time.Duration `yaml:"poll_interval"` // Status poll interval (default: 2s)
	PollTimeout  time.Duration `yaml:"poll_timeout"`  // Status poll deadline (default: 5m)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string  `yaml:"security_mode"` // development or production (default: development)
	APIToken     string  `yaml:"api_token"`     // Bearer token required in production mode
	RateLimit    float64 `yaml:"rate_limit"`    // Requests per second per client (default: 10)
	RateBurst    int     `yaml:"rate_burst"`    // default: 20
	MaxUploadMB  int     `yaml:"max_upload_mb"` // default: 100
}

// JobsConfig controls background processing.
type JobsConfig struct {
	Workers       int    `yaml:"workers"`        // Analysis queue workers (default: 2)
	QueueSize     int    `yaml:"queue_size"`     // Analysis queue capacity (default: 100)
	SweepSchedule string `yaml:"sweep_schedule"` // Cron spec for re-analysing pending/failed records; empty disables

	BackupSchedule string `yaml:"backup_schedule"` // Cron spec for SQLite snapshots; empty disables (default: @daily)
	BackupKeep     int    `yaml:"backup_keep"`     // Snapshots kept after each run (default: 7)
}

// LoadConfig loads defaults, the YAML file named by RECOLLECT_CONFIG (if any)
// and environment overrides, then validates the result.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("RECOLLECT_CONFIG"))
}

// LoadConfigFile is LoadConfig with an explicit YAML path. An empty path skips the file.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config populated with built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7474,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Models: ModelsConfig{
			TextProvider:          "ollama",
			EmbeddingProvider:     "ollama",
			VisionProvider:        "ollama",
			TranscriptionProvider: "whisper",
			OllamaURL:             "http://localhost:11434",
			OllamaModel:           "qwen2.5:7b",
			OllamaEmbeddingModel:  "nomic-embed-text",
			OllamaVisionModel:     "llava:7b",
			OpenAIBaseURL:         "https://api.openai.com/v1",
			OpenAIModel:           "gpt-4o-mini",
			OpenAIEmbeddingModel:  "text-embedding-3-small",
			AnthropicModel:        "claude-3-5-sonnet-20241022",
			GeminiModel:           "gemini-2.0-flash",
			GeminiEmbeddingModel:  "text-embedding-004",
			WhisperModel:          "whisper-1",
			RequestTimeout:        60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			StaleThreshold:   0.3,
			HighConfidence:   0.7,
			DecayRate:        0.1,
			VectorTopK:       20,
			MinSimilarity:    0.3,
			SynthesisRecords: 5,
			StepTimeout:      30 * time.Second,
			AnalysisBatch:    3,
			EmbeddingCache:   1000,
		},
		Remote: RemoteConfig{
			Timeout:      10 * time.Second,
			PollInterval: 2 * time.Second,
			PollTimeout:  5 * time.Minute,
		},
		Security: SecurityConfig{
			SecurityMode: "development",
			RateLimit:    10,
			RateBurst:    20,
			MaxUploadMB:  100,
		},
		Jobs: JobsConfig{
			Workers:        2,
			QueueSize:      100,
			SweepSchedule:  "@every 30m",
			BackupSchedule: "@daily",
			BackupKeep:     7,
		},
	}
}

// applyEnv overlays RECOLLECT_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("RECOLLECT_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("RECOLLECT_HOST", cfg.Server.Host)

	cfg.Storage.Engine = getEnv("RECOLLECT_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("RECOLLECT_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("RECOLLECT_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.VectorEngine = getEnv("RECOLLECT_VECTOR_ENGINE", cfg.Storage.VectorEngine)

	m := &cfg.Models
	m.TextProvider = getEnv("RECOLLECT_TEXT_PROVIDER", m.TextProvider)
	m.EmbeddingProvider = getEnv("RECOLLECT_EMBEDDING_PROVIDER", m.EmbeddingProvider)
	m.VisionProvider = getEnv("RECOLLECT_VISION_PROVIDER", m.VisionProvider)
	m.TranscriptionProvider = getEnv("RECOLLECT_TRANSCRIPTION_PROVIDER", m.TranscriptionProvider)
	m.OllamaURL = getEnv("RECOLLECT_OLLAMA_URL", m.OllamaURL)
	m.OllamaModel = getEnv("RECOLLECT_OLLAMA_MODEL", m.OllamaModel)
	m.OllamaEmbeddingModel = getEnv("RECOLLECT_OLLAMA_EMBEDDING_MODEL", m.OllamaEmbeddingModel)
	m.OllamaVisionModel = getEnv("RECOLLECT_OLLAMA_VISION_MODEL", m.OllamaVisionModel)
	m.OpenAIAPIKey = getEnv("RECOLLECT_OPENAI_API_KEY", m.OpenAIAPIKey)
	m.OpenAIBaseURL = getEnv("RECOLLECT_OPENAI_BASE_URL", m.OpenAIBaseURL)
	m.OpenAIModel = getEnv("RECOLLECT_OPENAI_MODEL", m.OpenAIModel)
	m.OpenAIEmbeddingModel = getEnv("RECOLLECT_OPENAI_EMBEDDING_MODEL", m.OpenAIEmbeddingModel)
	m.AnthropicAPIKey = getEnv("RECOLLECT_ANTHROPIC_API_KEY", m.AnthropicAPIKey)
	m.AnthropicModel = getEnv("RECOLLECT_ANTHROPIC_MODEL", m.AnthropicModel)
	m.GeminiAPIKey = getEnv("RECOLLECT_GEMINI_API_KEY", m.GeminiAPIKey)
	m.GeminiModel = getEnv("RECOLLECT_GEMINI_MODEL", m.GeminiModel)
	m.GeminiEmbeddingModel = getEnv("RECOLLECT_GEMINI_EMBEDDING_MODEL", m.GeminiEmbeddingModel)
	m.WhisperAPIKey = getEnv("RECOLLECT_WHISPER_API_KEY", m.WhisperAPIKey)
	m.WhisperBaseURL = getEnv("RECOLLECT_WHISPER_BASE_URL", m.WhisperBaseURL)
	m.WhisperModel = getEnv("RECOLLECT_WHISPER_MODEL", m.WhisperModel)
	m.EmbeddingDimension = getEnvInt("RECOLLECT_EMBEDDING_DIMENSION", m.EmbeddingDimension)
	m.RequestTimeout = getEnvDuration("RECOLLECT_REQUEST_TIMEOUT", m.RequestTimeout)

	r := &cfg.Retrieval
	r.StaleThreshold = getEnvFloat("RECOLLECT_STALE_THRESHOLD", r.StaleThreshold)
	r.HighConfidence = getEnvFloat("RECOLLECT_HIGH_CONFIDENCE", r.HighConfidence)
	r.DecayRate = getEnvFloat("RECOLLECT_DECAY_RATE", r.DecayRate)
	r.VectorTopK = getEnvInt("RECOLLECT_VECTOR_TOP_K", r.VectorTopK)
	r.MinSimilarity = getEnvFloat("RECOLLECT_MIN_SIMILARITY", r.MinSimilarity)
	r.SynthesisRecords = getEnvInt("RECOLLECT_SYNTHESIS_RECORDS", r.SynthesisRecords)
	r.StepTimeout = getEnvDuration("RECOLLECT_STEP_TIMEOUT", r.StepTimeout)
	r.AnalysisBatch = getEnvInt("RECOLLECT_ANALYSIS_BATCH", r.AnalysisBatch)
	r.ConceptsFile = getEnv("RECOLLECT_CONCEPTS_FILE", r.ConceptsFile)
	r.EmbeddingCache = int64(getEnvInt("RECOLLECT_EMBEDDING_CACHE", int(r.EmbeddingCache)))

	cfg.Remote.URL = getEnv("RECOLLECT_REMOTE_URL", cfg.Remote.URL)
	cfg.Remote.APIToken = getEnv("RECOLLECT_REMOTE_TOKEN", cfg.Remote.APIToken)
	cfg.Remote.UserID = getEnv("RECOLLECT_REMOTE_USER_ID", cfg.Remote.UserID)
	cfg.Remote.Timeout = getEnvDuration("RECOLLECT_REMOTE_TIMEOUT", cfg.Remote.Timeout)
	cfg.Remote.PollInterval = getEnvDuration("RECOLLECT_POLL_INTERVAL", cfg.Remote.PollInterval)
	cfg.Remote.PollTimeout = getEnvDuration("RECOLLECT_POLL_TIMEOUT", cfg.Remote.PollTimeout)

	cfg.Security.SecurityMode = getEnv("RECOLLECT_SECURITY_MODE", cfg.Security.SecurityMode)
	cfg.Security.APIToken = getEnv("RECOLLECT_API_TOKEN", cfg.Security.APIToken)
	cfg.Security.RateLimit = getEnvFloat("RECOLLECT_RATE_LIMIT", cfg.Security.RateLimit)
	cfg.Security.RateBurst = getEnvInt("RECOLLECT_RATE_BURST", cfg.Security.RateBurst)
	cfg.Security.MaxUploadMB = getEnvInt("RECOLLECT_MAX_UPLOAD_MB", cfg.Security.MaxUploadMB)

	cfg.Jobs.Workers = getEnvInt("RECOLLECT_WORKERS", cfg.Jobs.Workers)
	cfg.Jobs.QueueSize = getEnvInt("RECOLLECT_QUEUE_SIZE", cfg.Jobs.QueueSize)
	if v, ok := os.LookupEnv("RECOLLECT_SWEEP_SCHEDULE"); ok {
		cfg.Jobs.SweepSchedule = v
	}
	if v, ok := os.LookupEnv("RECOLLECT_BACKUP_SCHEDULE"); ok {
		cfg.Jobs.BackupSchedule = v
	}
	cfg.Jobs.BackupKeep = getEnvInt("RECOLLECT_BACKUP_KEEP", cfg.Jobs.BackupKeep)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Engine {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.Engine))
	}

	switch c.Storage.VectorEngine {
	case "", "chromem":
	default:
		errs = append(errs, fmt.Errorf("unknown vector engine %q", c.Storage.VectorEngine))
	}

	r := c.Retrieval
	if r.StaleThreshold < 0 || r.StaleThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.stale_threshold must be within [0,1], got %v", r.StaleThreshold))
	}
	if r.HighConfidence < r.StaleThreshold || r.HighConfidence > 1 {
		errs = append(errs, fmt.Errorf("retrieval.high_confidence must be within [stale_threshold,1], got %v", r.HighConfidence))
	}
	if r.DecayRate < 0 {
		errs = append(errs, fmt.Errorf("retrieval.decay_rate must not be negative, got %v", r.DecayRate))
	}
	if r.MinSimilarity < -1 || r.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_similarity must be within [-1,1], got %v", r.MinSimilarity))
	}
	if r.VectorTopK <= 0 || r.SynthesisRecords <= 0 || r.AnalysisBatch <= 0 {
		errs = append(errs, errors.New("retrieval.vector_top_k, synthesis_records and analysis_batch must be positive"))
	}

	if c.Jobs.BackupKeep < 1 {
		errs = append(errs, fmt.Errorf("jobs.backup_keep must be at least 1, got %d", c.Jobs.BackupKeep))
	}

	if c.IsProduction() && c.Security.APIToken == "" {
		errs = append(errs, errors.New("security.api_token is required in production mode"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether authentication is enforced.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Security.SecurityMode, "production")
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration ("30s", "5m") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
