// Package config loads fraudocr settings from the environment, optionally
// layered over a YAML file named by FRAUDOCR_CONFIG. Environment variables
// win over the file; secrets are only read from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fraudocr/internal/artifact"
	"fraudocr/internal/cache"
	"fraudocr/internal/logger"
	"fraudocr/internal/retry"
)

// ErrMissingSetting is wrapped by the Require* checks.
var ErrMissingSetting = errors.New("required setting missing")

type Config struct {
	// OCR Configuration
	OCRBackend  string        `yaml:"ocr_backend"` // http, vision, documentai
	OCREndpoint string        `yaml:"ocr_endpoint"`
	OCRToken    string        `yaml:"-"`
	OCRTimeout  time.Duration `yaml:"ocr_timeout"`

	// Google Cloud Configuration
	GoogleCloudProject      string `yaml:"google_cloud_project"`
	GoogleCloudLocation     string `yaml:"google_cloud_location"`
	DocumentAIProcessorID   string `yaml:"document_ai_processor_id"`
	GoogleServiceAccountKey string `yaml:"-"`
	GoogleCredentialsFile   string `yaml:"google_credentials_file"`

	// Formatter Configuration
	FormatterBackend string        `yaml:"formatter_backend"` // gemini, openai
	GeminiModel      string        `yaml:"gemini_model"`
	VertexAIRegion   string        `yaml:"vertex_ai_region"`
	OpenAIAPIKey     string        `yaml:"-"`
	OpenAIModel      string        `yaml:"openai_model"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	FormatMaxRetries int           `yaml:"format_max_retries"`
	FormatBaseDelay  time.Duration `yaml:"format_base_delay"`

	// Cache Configuration
	CacheBackend  string `yaml:"cache_backend"` // postgres, supabase, mysql, mongo, memory
	DatabaseURL   string `yaml:"-"`
	MySQLDSN      string `yaml:"-"`
	MongoURI      string `yaml:"-"`
	MongoDatabase string `yaml:"mongo_database"`
	CacheTable    string `yaml:"cache_table"`

	// Artifact Configuration
	ArtifactBackend string `yaml:"artifact_backend"` // local, minio, gcs, none
	ArtifactDir     string `yaml:"artifact_dir"`
	ArtifactBucket  string `yaml:"artifact_bucket"`
	ArtifactPrefix  string `yaml:"artifact_prefix"`
	MinioEndpoint   string `yaml:"minio_endpoint"`
	MinioRegion     string `yaml:"minio_region"`
	MinioAccessKey  string `yaml:"-"`
	MinioSecretKey  string `yaml:"-"`
	MinioUseSSL     bool   `yaml:"minio_use_ssl"`

	// Server Configuration
	ServerAddr  string   `yaml:"server_addr"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Logging Configuration
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogTimeFormat string `yaml:"log_time_format"`
	LogOutput     string `yaml:"log_output"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		OCRBackend:          "http",
		OCREndpoint:         "http://localhost:8000",
		OCRTimeout:          10 * time.Minute,
		GoogleCloudLocation: "us",
		FormatterBackend:    "gemini",
		GeminiModel:         "gemini-2.5-flash",
		VertexAIRegion:      "us-central1",
		OpenAIModel:         "gpt-4o",
		FormatMaxRetries:    3,
		FormatBaseDelay:     2 * time.Second,
		CacheBackend:        "supabase",
		MongoDatabase:       "fraudocr",
		CacheTable:          cache.DefaultTable,
		ArtifactBackend:     "local",
		ArtifactDir:         ".",
		ServerAddr:          ":8080",
		CORSOrigins:         []string{"*"},
		LogLevel:            "info",
		LogFormat:           "console",
		LogTimeFormat:       time.RFC3339,
		LogOutput:           "stderr",
	}
}

func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("FRAUDOCR_CONFIG"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.OCRBackend = getEnv("OCR_BACKEND", c.OCRBackend)
	c.OCREndpoint = getEnv("OCR_ENDPOINT", c.OCREndpoint)
	c.OCRToken = getEnv("OCR_TOKEN", c.OCRToken)

	c.GoogleCloudProject = getEnv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	c.GoogleCloudLocation = getEnv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	c.DocumentAIProcessorID = getEnv("DOCUMENT_AI_PROCESSOR_ID", c.DocumentAIProcessorID)
	c.GoogleServiceAccountKey = getEnv("GOOGLE_SERVICE_ACCOUNT_KEY", c.GoogleServiceAccountKey)
	c.GoogleCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsFile)

	c.FormatterBackend = getEnv("FORMATTER_BACKEND", c.FormatterBackend)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.VertexAIRegion = getEnv("VERTEX_AI_REGION", c.VertexAIRegion)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)

	c.CacheBackend = getEnv("CACHE_BACKEND", c.CacheBackend)
	c.DatabaseURL = getEnv("DATABASE_URL", getEnv("SUPABASE_DB_URL", c.DatabaseURL))
	c.MySQLDSN = getEnv("MYSQL_DSN", c.MySQLDSN)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGO_DATABASE", c.MongoDatabase)
	c.CacheTable = getEnv("CACHE_TABLE", c.CacheTable)

	c.ArtifactBackend = getEnv("ARTIFACT_BACKEND", c.ArtifactBackend)
	c.ArtifactDir = getEnv("ARTIFACT_DIR", c.ArtifactDir)
	c.ArtifactBucket = getEnv("ARTIFACT_BUCKET", c.ArtifactBucket)
	c.ArtifactPrefix = getEnv("ARTIFACT_PREFIX", c.ArtifactPrefix)
	c.MinioEndpoint = getEnv("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioRegion = getEnv("MINIO_REGION", c.MinioRegion)
	c.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("MINIO_SECRET_KEY", c.MinioSecretKey)

	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogTimeFormat = getEnv("LOG_TIME_FORMAT", c.LogTimeFormat)
	c.LogOutput = getEnv("LOG_OUTPUT", c.LogOutput)

	var err error
	if c.OCRTimeout, err = getDuration("OCR_TIMEOUT", c.OCRTimeout); err != nil {
		return err
	}
	if c.FormatBaseDelay, err = getDuration("FORMAT_BASE_DELAY", c.FormatBaseDelay); err != nil {
		return err
	}
	if v := os.Getenv("FORMAT_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORMAT_MAX_RETRIES: %w", err)
		}
		c.FormatMaxRetries = n
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MINIO_USE_SSL: %w", err)
		}
		c.MinioUseSSL = b
	}
	return nil
}

// validate checks values that are set. Whether a setting is needed at all
// depends on the command, see the Require* methods.
func (c *Config) validate() error {
	switch c.OCRBackend {
	case "http", "vision", "documentai":
	default:
		return fmt.Errorf("OCR_BACKEND must be http, vision or documentai, got %q", c.OCRBackend)
	}
	switch c.FormatterBackend {
	case "gemini", "openai":
	default:
		return fmt.Errorf("FORMATTER_BACKEND must be gemini or openai, got %q", c.FormatterBackend)
	}
	switch c.ArtifactBackend {
	case "local", "minio", "gcs", "none":
	default:
		return fmt.Errorf("ARTIFACT_BACKEND must be local, minio, gcs or none, got %q", c.ArtifactBackend)
	}
	if c.FormatMaxRetries < 0 {
		return fmt.Errorf("FORMAT_MAX_RETRIES must not be negative")
	}
	if c.FormatBaseDelay <= 0 {
		return fmt.Errorf("FORMAT_BASE_DELAY must be positive")
	}
	if c.OCRTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive")
	}
	return nil
}

// RequireCache checks the settings needed to open the cache.
func (c *Config) RequireCache() error {
	if err := c.CacheConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingSetting, err)
	}
	return nil
}

// RequireOCR checks the settings needed by the configured OCR backend.
func (c *Config) RequireOCR() error {
	switch c.OCRBackend {
	case "http":
		if c.OCREndpoint == "" {
			return fmt.Errorf("%w: OCR_ENDPOINT is required", ErrMissingSetting)
		}
	case "documentai":
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("%w: DOCUMENT_AI_PROCESSOR_ID is required", ErrMissingSetting)
		}
		fallthrough
	case "vision":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("%w: GOOGLE_CLOUD_PROJECT is required", ErrMissingSetting)
		}
	}
	return nil
}

// RequireFormatter checks the settings needed by the configured AI backend.
func (c *Config) RequireFormatter() error {
	switch c.FormatterBackend {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required", ErrMissingSetting)
		}
	case "gemini":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("%w: GOOGLE_CLOUD_PROJECT is required", ErrMissingSetting)
		}
	}
	return nil
}

// CacheConfig returns the cache store settings.
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.Config{
		Backend:       c.CacheBackend,
		DSN:           c.DatabaseURL,
		Table:         c.CacheTable,
		MongoURI:      c.MongoURI,
		MongoDatabase: c.MongoDatabase,
	}
	if strings.EqualFold(c.CacheBackend, "mysql") {
		cfg.DSN = c.MySQLDSN
	}
	return cfg
}

// RetryPolicy returns the formatter retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: c.FormatMaxRetries, BaseDelay: c.FormatBaseDelay}
}

// MinioConfig returns the MinIO artifact settings.
func (c *Config) MinioConfig() artifact.MinioConfig {
	return artifact.MinioConfig{
		Endpoint:  c.MinioEndpoint,
		Region:    c.MinioRegion,
		Bucket:    c.ArtifactBucket,
		AccessKey: c.MinioAccessKey,
		SecretKey: c.MinioSecretKey,
		UseSSL:    c.MinioUseSSL,
		Prefix:    c.ArtifactPrefix,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
