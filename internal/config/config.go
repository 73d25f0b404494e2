// Package config loads the YAML config file, then .env files, then
// environment overrides. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	CORSOrigins  []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
	// APIKeys maps owner id to API key. Empty leaves the client API open.
	APIKeys map[string]string `yaml:"api_keys" env:"API_KEYS"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	Name            string        `yaml:"name" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey  string `yaml:"accessKey" env:"MINIO_ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey" env:"MINIO_SECRET_KEY"`
	BucketName string `yaml:"bucketName" env:"MINIO_BUCKET"`
	Region     string `yaml:"region" env:"MINIO_REGION"`
	UseSSL     bool   `yaml:"useSSL" env:"MINIO_USE_SSL"`
}

type QueueConfig struct {
	// PublicBaseURL is where the dispatcher reaches the stage endpoints.
	PublicBaseURL    string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	SigningKey       string `yaml:"signing_key" env:"QUEUE_SIGNING_KEY"`
	NextSigningKey   string `yaml:"next_signing_key" env:"QUEUE_NEXT_SIGNING_KEY"`
	RequireSignature bool   `yaml:"require_signature" env:"QUEUE_REQUIRE_SIGNATURE"`
	Retries          int    `yaml:"retries" env:"QUEUE_RETRIES"`
}

type DispatcherConfig struct {
	Workers           int           `yaml:"workers" env:"DISPATCHER_WORKERS"`
	Poll              time.Duration `yaml:"poll" env:"DISPATCHER_POLL"`
	BackoffInitial    time.Duration `yaml:"backoff_initial" env:"DISPATCHER_BACKOFF_INITIAL"`
	BackoffMax        time.Duration `yaml:"backoff_max" env:"DISPATCHER_BACKOFF_MAX"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"DISPATCHER_BACKOFF_MULTIPLIER"`
	MetricsAddr       string        `yaml:"metrics_addr" env:"DISPATCHER_METRICS_ADDR"`
}

type StoreConfig struct {
	TTL time.Duration `yaml:"ttl" env:"STORE_TTL"`
}

// StagesConfig holds the wall-clock budget of each stage. The budget is the
// dispatcher's delivery timeout for that stage.
type StagesConfig struct {
	Extract        time.Duration `yaml:"extract_timeout" env:"STAGE_EXTRACT_TIMEOUT"`
	PreAnalyze     time.Duration `yaml:"pre_analyze_timeout" env:"STAGE_PRE_ANALYZE_TIMEOUT"`
	DeepAnalyze    time.Duration `yaml:"deep_analyze_timeout" env:"STAGE_DEEP_ANALYZE_TIMEOUT"`
	CrossValidate  time.Duration `yaml:"cross_validate_timeout" env:"STAGE_CROSS_VALIDATE_TIMEOUT"`
	GenerateReport time.Duration `yaml:"generate_report_timeout" env:"STAGE_GENERATE_REPORT_TIMEOUT"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	Model   string `yaml:"model" env:"MODEL"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

type LLMConfig struct {
	// Fast is an OpenAI compatible endpoint, Strong is Anthropic. Without an
	// Anthropic key the strong class falls back to the OpenAI endpoint with
	// StrongFallbackModel.
	Fast                ProviderConfig `yaml:"fast" envPrefix:"LLM_FAST_"`
	Strong              ProviderConfig `yaml:"strong" envPrefix:"LLM_STRONG_"`
	StrongFallbackModel string         `yaml:"strong_fallback_model" env:"LLM_STRONG_FALLBACK_MODEL"`
	AgentTimeout        time.Duration  `yaml:"agent_timeout" env:"LLM_AGENT_TIMEOUT"`
	PreAnalysisTimeout  time.Duration  `yaml:"pre_analysis_timeout" env:"LLM_PRE_ANALYSIS_TIMEOUT"`
	CrossCheckTimeout   time.Duration  `yaml:"cross_validation_timeout" env:"LLM_CROSS_VALIDATION_TIMEOUT"`
}

type PipelineConfig struct {
	MinContentChars int `yaml:"min_content_chars" env:"PIPELINE_MIN_CONTENT_CHARS"`
}

type CreditsConfig struct {
	Basic         int `yaml:"basic" env:"CREDITS_BASIC"`
	Standard      int `yaml:"standard" env:"CREDITS_STANDARD"`
	Comprehensive int `yaml:"comprehensive" env:"CREDITS_COMPREHENSIVE"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RATELIMIT_RPS"`
	Burst int     `yaml:"burst" env:"RATELIMIT_BURST"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

type ExtractConfig struct {
	// Commands maps a file extension to a converter reading stdin and
	// writing plain text to stdout.
	Commands map[string]string `yaml:"commands" env:"EXTRACT_COMMANDS"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Minio      MinioConfig      `yaml:"minio"`
	Queue      QueueConfig      `yaml:"queue"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Store      StoreConfig      `yaml:"store"`
	Stages     StagesConfig     `yaml:"stages"`
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Credits    CreditsConfig    `yaml:"credits"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Extract    ExtractConfig    `yaml:"extract"`
}

// Default is the configuration before the file and environment are applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "paperscore",
			Name:            "paperscore",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Minio: MinioConfig{BucketName: "documents", Region: "us-east-1"},
		Queue: QueueConfig{
			PublicBaseURL:    "http://localhost:8080",
			RequireSignature: true,
			Retries:          3,
		},
		Dispatcher: DispatcherConfig{
			Workers:           4,
			Poll:              2 * time.Second,
			BackoffInitial:    100 * time.Millisecond,
			BackoffMax:        30 * time.Second,
			BackoffMultiplier: 2,
			MetricsAddr:       ":9091",
		},
		Store: StoreConfig{TTL: 2 * time.Hour},
		Stages: StagesConfig{
			Extract:        60 * time.Second,
			PreAnalyze:     120 * time.Second,
			DeepAnalyze:    9 * time.Minute,
			CrossValidate:  4 * time.Minute,
			GenerateReport: 60 * time.Second,
		},
		LLM: LLMConfig{
			Fast:                ProviderConfig{Model: "gpt-4o-mini"},
			Strong:              ProviderConfig{Model: "claude-sonnet-4-5"},
			StrongFallbackModel: "gpt-4o",
			AgentTimeout:        3 * time.Minute,
			PreAnalysisTimeout:  90 * time.Second,
			CrossCheckTimeout:   3 * time.Minute,
		},
		Pipeline:  PipelineConfig{MinContentChars: 500},
		Credits:   CreditsConfig{Basic: 1, Standard: 3, Comprehensive: 5},
		RateLimit: RateLimitConfig{RPS: 1, Burst: 5},
		Logging:   LoggingConfig{Level: "info"},
		Extract: ExtractConfig{Commands: map[string]string{
			".pdf":  "pdftotext -layout - -",
			".docx": "pandoc -f docx -t plain",
		}},
	}
}

// Load reads path over the defaults, then .env files and the environment.
// A missing file is fine when the environment carries everything.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local then .env.
// godotenv never overrides a variable that is already set.
func loadEnvFiles() error {
	if f := os.Getenv("ENV_FILE"); f != "" {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Path returns CONFIG_PATH or config.yaml.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

// DSN builds the Postgres connection string. DATABASE_URL wins when set.
func (c *Config) DSN() string {
	d := c.Database
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// Budgets returns the delivery timeout of each stage.
func (c *Config) Budgets() map[jobs.Stage]time.Duration {
	return map[jobs.Stage]time.Duration{
		jobs.StageExtract:       c.Stages.Extract,
		jobs.StagePreAnalyze:    c.Stages.PreAnalyze,
		jobs.StageDeepAnalyze:   c.Stages.DeepAnalyze,
		jobs.StageCrossValidate: c.Stages.CrossValidate,
		jobs.StageReport:        c.Stages.GenerateReport,
	}
}

// WorstCaseRuntime is the longest a job can take when every stage uses its
// full budget on every attempt and waits out the whole retry schedule.
func (c *Config) WorstCaseRuntime() time.Duration {
	var sum time.Duration
	for _, b := range c.Budgets() {
		sum += b*time.Duration(1+c.Queue.Retries) + c.RetryWait()
	}
	return sum
}

// RetryWait is the time one stage spends between attempts: the backoff
// before each retry plus a poll tick for the delayed message to come due.
func (c *Config) RetryWait() time.Duration {
	d := c.Dispatcher
	if d.BackoffInitial <= 0 {
		d.BackoffInitial = 100 * time.Millisecond
	}
	if d.BackoffMultiplier <= 0 {
		d.BackoffMultiplier = 2
	}
	var wait time.Duration
	for n := 1; n <= c.Queue.Retries; n++ {
		delay := time.Duration(float64(d.BackoffInitial) * math.Pow(d.BackoffMultiplier, float64(n-1)))
		if d.BackoffMax > 0 && delay > d.BackoffMax {
			delay = d.BackoffMax
		}
		wait += delay + d.Poll
	}
	return wait
}
