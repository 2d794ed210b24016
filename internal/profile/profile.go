package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory holding the knowledge file and backups
	Data string
	// KnowledgeFile is the knowledge document (JSON or YAML), relative to Data unless absolute
	KnowledgeFile string
	// BackupDir receives knowledge backups, relative to Data unless absolute
	BackupDir string
	// WatchKnowledge reloads the knowledge document when the file changes
	WatchKnowledge bool
	// Version is the current version of server
	Version string

	// Generation provider
	LLMProvider string // ATABOT_LLM_PROVIDER (default: poe)
	LLMModel    string // ATABOT_LLM_MODEL (default: ChatGPT-3.5-Turbo)
	LLMBaseURL  string // ATABOT_LLM_BASE_URL (default: https://api.poe.com/v1)
	LLMAPIKey   string // ATABOT_LLM_API_KEY

	// Embedding provider; an empty API key disables embeddings for the process lifetime
	EmbeddingProvider string // ATABOT_EMBEDDING_PROVIDER (default: voyage)
	EmbeddingModel    string // ATABOT_EMBEDDING_MODEL (default: voyage-3.5-lite)
	EmbeddingBaseURL  string // ATABOT_EMBEDDING_BASE_URL (default: https://api.voyageai.com/v1)
	EmbeddingAPIKey   string // ATABOT_EMBEDDING_API_KEY

	// Retrieval and conversation
	MaxContextTurns     int     // ATABOT_MAX_CONTEXT_TURNS (default: 5)
	SimilarityThreshold float64 // ATABOT_SIMILARITY_THRESHOLD (default: 0.7)
	SessionIdleTTL      time.Duration

	// Cache
	CacheCapacity     int
	CacheDefaultTTL   time.Duration
	EmbeddingCacheTTL time.Duration
	ResponseCacheTTL  time.Duration

	// Load shaping
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	RateLimitPerMinute    int

	// Admin credentials for the data editing endpoints
	AdminUsername     string
	AdminPassword     string
	AdminPasswordHash string // bcrypt; wins over AdminPassword when set
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled reports whether an embedding capability is configured.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.EmbeddingAPIKey != ""
}

// KnowledgePath returns the absolute knowledge file path.
func (p *Profile) KnowledgePath() string {
	return resolve(p.Data, p.KnowledgeFile)
}

// BackupPath returns the absolute backup directory.
func (p *Profile) BackupPath() string {
	return resolve(p.Data, p.BackupDir)
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring malformed integer env", "key", key, "value", value)
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("ignoring malformed float env", "key", key, "value", value)
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring malformed duration env", "key", key, "value", value)
	}
	return defaultValue
}

// FromEnv loads the provider, retrieval and load-shaping settings from ATABOT_* variables.
// Fields already set by flags are left alone.
func (p *Profile) FromEnv() {
	setString := func(field *string, key, defaultValue string) {
		if *field == "" {
			*field = getEnvOrDefault(key, defaultValue)
		}
	}
	setInt := func(field *int, key string, defaultValue int) {
		if *field == 0 {
			*field = getIntEnvOrDefault(key, defaultValue)
		}
	}
	setDuration := func(field *time.Duration, key string, defaultValue time.Duration) {
		if *field == 0 {
			*field = getDurationEnvOrDefault(key, defaultValue)
		}
	}

	setString(&p.KnowledgeFile, "ATABOT_KNOWLEDGE_FILE", "data.json")
	setString(&p.BackupDir, "ATABOT_BACKUP_DIR", "backups")

	setString(&p.LLMProvider, "ATABOT_LLM_PROVIDER", "poe")
	setString(&p.LLMModel, "ATABOT_LLM_MODEL", "ChatGPT-3.5-Turbo")
	setString(&p.LLMBaseURL, "ATABOT_LLM_BASE_URL", "https://api.poe.com/v1")
	setString(&p.LLMAPIKey, "ATABOT_LLM_API_KEY", "")

	setString(&p.EmbeddingProvider, "ATABOT_EMBEDDING_PROVIDER", "voyage")
	setString(&p.EmbeddingModel, "ATABOT_EMBEDDING_MODEL", "voyage-3.5-lite")
	setString(&p.EmbeddingBaseURL, "ATABOT_EMBEDDING_BASE_URL", "https://api.voyageai.com/v1")
	setString(&p.EmbeddingAPIKey, "ATABOT_EMBEDDING_API_KEY", "")

	setInt(&p.MaxContextTurns, "ATABOT_MAX_CONTEXT_TURNS", 5)
	if p.SimilarityThreshold == 0 {
		p.SimilarityThreshold = getFloatEnvOrDefault("ATABOT_SIMILARITY_THRESHOLD", 0.7)
	}
	setDuration(&p.SessionIdleTTL, "ATABOT_SESSION_IDLE_TTL", 24*time.Hour)

	setInt(&p.CacheCapacity, "ATABOT_CACHE_CAPACITY", 10000)
	setDuration(&p.CacheDefaultTTL, "ATABOT_CACHE_DEFAULT_TTL", time.Hour)
	setDuration(&p.EmbeddingCacheTTL, "ATABOT_EMBEDDING_CACHE_TTL", 24*time.Hour)
	setDuration(&p.ResponseCacheTTL, "ATABOT_RESPONSE_CACHE_TTL", 30*time.Minute)

	setInt(&p.MaxConcurrentRequests, "ATABOT_MAX_CONCURRENT_REQUESTS", 100)
	setDuration(&p.RequestTimeout, "ATABOT_REQUEST_TIMEOUT", 30*time.Second)
	setInt(&p.RateLimitPerMinute, "ATABOT_RATE_LIMIT_PER_MINUTE", 20)

	setString(&p.AdminUsername, "ATABOT_ADMIN_USERNAME", "admin")
	setString(&p.AdminPassword, "ATABOT_ADMIN_PASSWORD", "admin123")
	setString(&p.AdminPasswordHash, "ATABOT_ADMIN_PASSWORD_HASH", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.KnowledgeFile == "" {
		p.KnowledgeFile = "data.json"
	}
	if p.BackupDir == "" {
		p.BackupDir = "backups"
	}

	if p.MaxContextTurns <= 0 {
		return errors.Errorf("max context turns must be positive, got %d", p.MaxContextTurns)
	}
	if p.SimilarityThreshold < -1 || p.SimilarityThreshold > 1 {
		return errors.Errorf("similarity threshold must be within [-1, 1], got %v", p.SimilarityThreshold)
	}
	if p.MaxConcurrentRequests <= 0 {
		return errors.Errorf("max concurrent requests must be positive, got %d", p.MaxConcurrentRequests)
	}
	if p.RequestTimeout <= 0 {
		return errors.Errorf("request timeout must be positive, got %s", p.RequestTimeout)
	}
	if p.LLMProvider == "" {
		return errors.New("LLM provider is required")
	}
	if p.LLMProvider != "ollama" && p.LLMAPIKey == "" {
		slog.Warn("LLM API key is empty; generation calls will fail", "provider", p.LLMProvider)
	}

	return nil
}
