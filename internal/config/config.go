package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig               `mapstructure:"server"`
	OCR        OCRConfig                  `mapstructure:"ocr"`
	Serverless ServerlessConfig           `mapstructure:"serverless"`
	Tracing    observability.TracerConfig `mapstructure:"tracing"`
	Metrics    MetricsConfig              `mapstructure:"metrics"`
	LogFormat  string                     `mapstructure:"log_format"` // auto, console or json
	Debug      bool                       `mapstructure:"debug"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	HealthPort      int           `mapstructure:"health_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`
}

// OCRConfig contains engine settings
type OCRConfig struct {
	Engine           ocr.EngineType `mapstructure:"engine"`
	Models           ocr.ModelPaths `mapstructure:"models"`
	PoolSize         int            `mapstructure:"pool_size"`
	OMPNumThreads    string         `mapstructure:"omp_num_threads"`
	MKLNumThreads    string         `mapstructure:"mkl_num_threads"`
	PrewarmOnStart   bool           `mapstructure:"prewarm_on_start"`
	KeepWarmSchedule string         `mapstructure:"keepwarm_schedule"`
}

// ServerlessConfig contains job queue settings
type ServerlessConfig struct {
	GetJobURL      string        `mapstructure:"get_job_url"`
	PostOutputURL  string        `mapstructure:"post_output_url"`
	APIKey         string        `mapstructure:"api_key"`
	WorkerID       string        `mapstructure:"worker_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TestInputFile  string        `mapstructure:"test_input_file"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	v.SetConfigName("ocrserve")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ocrserve")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("OCRSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindPlatformEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// bindPlatformEnv maps the unprefixed variables set by the container platform.
// The prefixed form still wins when both are present.
func bindPlatformEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":                "PORT",
		"server.health_port":         "PORT_HEALTH",
		"serverless.get_job_url":     "RUNPOD_WEBHOOK_GET_JOB",
		"serverless.post_output_url": "RUNPOD_WEBHOOK_POST_OUTPUT",
		"serverless.api_key":         "RUNPOD_AI_API_KEY",
		"serverless.worker_id":       "RUNPOD_POD_ID",
		"ocr.omp_num_threads":        "OMP_NUM_THREADS",
		"ocr.mkl_num_threads":        "MKL_NUM_THREADS",
	}
	for key, env := range bindings {
		prefixed := "OCRSERVE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.health_port", 8001)
	v.SetDefault("server.read_timeout", "120s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.body_limit", 64*1024*1024) // 64MB

	// OCR defaults
	models := ocr.DefaultModelPaths()
	v.SetDefault("ocr.engine", string(ocr.EngineTypeTesseract))
	v.SetDefault("ocr.models.detector", models.Detector)
	v.SetDefault("ocr.models.recognizer", models.Recognizer)
	v.SetDefault("ocr.models.classifier", models.Classifier)
	v.SetDefault("ocr.pool_size", 0) // 0 = OMP_NUM_THREADS or CPU count
	v.SetDefault("ocr.omp_num_threads", "")
	v.SetDefault("ocr.mkl_num_threads", "")
	v.SetDefault("ocr.prewarm_on_start", true)
	v.SetDefault("ocr.keepwarm_schedule", "")

	// Serverless defaults
	v.SetDefault("serverless.get_job_url", "")
	v.SetDefault("serverless.post_output_url", "")
	v.SetDefault("serverless.api_key", "")
	v.SetDefault("serverless.worker_id", "")
	v.SetDefault("serverless.poll_interval", "1s")
	v.SetDefault("serverless.request_timeout", "30s")
	v.SetDefault("serverless.test_input_file", "test_input.json")

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	v.SetDefault("tracing.enabled", tracing.Enabled)
	v.SetDefault("tracing.endpoint", tracing.Endpoint)
	v.SetDefault("tracing.service_name", tracing.ServiceName)
	v.SetDefault("tracing.environment", tracing.Environment)
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("tracing.insecure", tracing.Insecure)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log_format", "auto")
	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("ocr configuration error: %w", err)
	}
	if c.Serverless.PollInterval <= 0 {
		return fmt.Errorf("serverless poll_interval must be positive")
	}
	switch c.LogFormat {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("log_format must be auto, console or json")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1")
	}
	return nil
}

// Validate validates listener settings
func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", sc.Port)
	}
	if sc.HealthPort <= 0 || sc.HealthPort > 65535 {
		return fmt.Errorf("health_port must be between 1 and 65535, got %d", sc.HealthPort)
	}
	if sc.Port == sc.HealthPort {
		return fmt.Errorf("port and health_port must differ, both are %d", sc.Port)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}
	return nil
}

// Address returns the main listener address
func (sc *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", sc.Host, sc.Port)
}

// HealthAddress returns the health listener address
func (sc *ServerConfig) HealthAddress() string {
	return fmt.Sprintf("%s:%d", sc.Host, sc.HealthPort)
}

// Validate validates engine settings. Model files are checked at engine construction.
func (oc *OCRConfig) Validate() error {
	if oc.Engine != ocr.EngineTypeTesseract {
		return fmt.Errorf("unsupported engine %q", oc.Engine)
	}
	if oc.Models.Recognizer == "" {
		return fmt.Errorf("models.recognizer is required")
	}
	if oc.PoolSize < 0 {
		return fmt.Errorf("pool_size cannot be negative")
	}
	if oc.OMPNumThreads != "" {
		if n, err := strconv.Atoi(oc.OMPNumThreads); err != nil || n <= 0 {
			return fmt.Errorf("OMP_NUM_THREADS must be a positive integer, got %q", oc.OMPNumThreads)
		}
	}
	return nil
}

// EffectivePoolSize resolves the engine pool size: explicit setting, then
// OMP_NUM_THREADS, then the CPU count.
func (oc *OCRConfig) EffectivePoolSize() int {
	if oc.PoolSize > 0 {
		return oc.PoolSize
	}
	if n, err := strconv.Atoi(oc.OMPNumThreads); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// EngineConfig returns the settings used to construct the engine
func (oc *OCRConfig) EngineConfig() ocr.EngineConfig {
	return ocr.EngineConfig{
		Type:     oc.Engine,
		Models:   oc.Models,
		PoolSize: oc.EffectivePoolSize(),
	}
}

// Validate checks the settings needed to poll a job queue
func (sc *ServerlessConfig) Validate() error {
	if sc.GetJobURL == "" {
		return fmt.Errorf("RUNPOD_WEBHOOK_GET_JOB is required")
	}
	if sc.PostOutputURL == "" {
		return fmt.Errorf("RUNPOD_WEBHOOK_POST_OUTPUT is required")
	}
	if sc.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
