package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvConfigPath names the config file when no -config flag is given
	EnvConfigPath = "COLLECTOR_CONFIG_PATH"
	// DefaultConfigPath is used when neither flag nor env var is set
	DefaultConfigPath = "config/config.yaml"
)

// Inference retry defaults; zero is a valid explicit setting for both, so they
// are seeded before parsing instead of filled in afterwards
const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 2 * time.Second
)

// Inference providers
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Registry drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
	Imaging   ImagingConfig   `yaml:"imaging"`
	Inference InferenceConfig `yaml:"inference"`
	Storage   StorageConfig   `yaml:"storage"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Registry  RegistryConfig  `yaml:"registry"`
	Publish   PublishConfig   `yaml:"publish"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"gte=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format       string `yaml:"format" validate:"omitempty,oneof=json console"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
}

// WorkerConfig sizes the in-memory queue and the worker pool
type WorkerConfig struct {
	Concurrency int    `yaml:"concurrency" validate:"gte=1"`
	QueueSize   int    `yaml:"queue_size" validate:"gte=1"`
	Strategy    string `yaml:"strategy" validate:"oneof=single sequential"`
}

// ImagingConfig controls rasterization and normalization
type ImagingConfig struct {
	MaxWidth     int     `yaml:"max_width" validate:"gte=1"`
	Quality      int     `yaml:"quality" validate:"gte=1,lte=100"`
	MaxPages     int     `yaml:"max_pages" validate:"gte=1"`
	RenderScale  float64 `yaml:"render_scale" validate:"gt=0"`
	Concurrency  int     `yaml:"concurrency" validate:"gte=1"`
	PdftoppmPath string  `yaml:"pdftoppm_path"`
	TempDir      string  `yaml:"temp_dir"`
}

// InferenceConfig selects and tunes the vision backend
type InferenceConfig struct {
	Provider   string        `yaml:"provider" validate:"oneof=ollama openai"`
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Model      string        `yaml:"model" validate:"required"`
	APIKey     string        `yaml:"api_key"`
	NumCtx     int           `yaml:"num_ctx" validate:"gte=0"`
	NumBatch   int           `yaml:"num_batch" validate:"gte=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// StorageConfig holds the output directories
type StorageConfig struct {
	JSONDir       string `yaml:"json_dir" validate:"required"`
	ImageDir      string `yaml:"image_dir"`
	MaxNameLength int    `yaml:"max_name_length" validate:"gte=1"`
}

// PromptConfig points at an optional prompt template override
type PromptConfig struct {
	TemplatePath string `yaml:"template_path"`
}

// RegistryConfig selects where job state lives
type RegistryConfig struct {
	Driver   string         `yaml:"driver" validate:"oneof=memory postgres"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// PublishConfig lists the downstream consumers of finished records
type PublishConfig struct {
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Retry      RetryConfig      `yaml:"retry"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type" validate:"omitempty,oneof=direct fanout topic headers"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds the optional queue bound to the exchange
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// RetryConfig holds RabbitMQ publish retry settings
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// HTTPConfig configures the POST to the downstream core service
type HTTPConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// ConfigPath resolves the config file from the flag value, then the env var
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads and parses the configuration file, applies environment
// overrides and fills defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Inference: InferenceConfig{
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv()
	config.ApplyDefaults()
	return &config, nil
}

// ApplyEnv overrides secrets and endpoints from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Inference.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Inference.APIKey = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Registry.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.Publish.RabbitMQ.Password = v
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	setDefault(&c.App.Name, "job-collector")
	setDefault(&c.Server.Port, 8000)
	setDefault(&c.Server.ReadTimeout, 30*time.Second)
	setDefault(&c.Server.WriteTimeout, 30*time.Second)
	setDefault(&c.Server.IdleTimeout, 60*time.Second)
	setDefault(&c.Server.ShutdownTimeout, 30*time.Second)
	setDefault(&c.Server.MaxBodyBytes, int64(64<<20))

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "console")
	setDefault(&c.Logging.Output, "stdout")

	setDefault(&c.Worker.Concurrency, 1)
	setDefault(&c.Worker.QueueSize, 100)
	setDefault(&c.Worker.Strategy, "single")

	setDefault(&c.Imaging.MaxWidth, 800)
	setDefault(&c.Imaging.Quality, 75)
	setDefault(&c.Imaging.MaxPages, 5)
	setDefault(&c.Imaging.RenderScale, 1.5)
	setDefault(&c.Imaging.Concurrency, 2)
	setDefault(&c.Imaging.PdftoppmPath, "pdftoppm")

	setDefault(&c.Inference.Provider, ProviderOllama)
	setDefault(&c.Inference.Model, "qwen2.5vl:3b")
	setDefault(&c.Inference.NumCtx, 8192)
	setDefault(&c.Inference.Timeout, 120*time.Second)
	if c.Inference.Provider == ProviderOllama {
		setDefault(&c.Inference.BaseURL, "http://localhost:11434")
	}

	setDefault(&c.Storage.JSONDir, "output/json")
	setDefault(&c.Storage.ImageDir, "output/images")
	setDefault(&c.Storage.MaxNameLength, 100)

	setDefault(&c.Registry.Driver, DriverMemory)
	db := &c.Registry.Database
	setDefault(&db.Port, 5432)
	setDefault(&db.SSLMode, "disable")
	setDefault(&db.MaxOpenConns, 10)
	setDefault(&db.MaxIdleConns, 5)
	setDefault(&db.ConnMaxLifetime, 30*time.Minute)
	setDefault(&db.ConnMaxIdleTime, 5*time.Minute)

	mq := &c.Publish.RabbitMQ
	setDefault(&mq.Port, 5672)
	setDefault(&mq.VHost, "/")
	setDefault(&mq.Exchange.Type, "topic")
	setDefault(&mq.RoutingKey, "job.succeeded")
	setDefault(&mq.Connection.RetryAttempts, 5)
	setDefault(&mq.Connection.RetryInterval, 2*time.Second)
	setDefault(&mq.Connection.Heartbeat, 10*time.Second)
	setDefault(&mq.Retry.Attempts, 3)
	setDefault(&mq.Retry.Delay, 100*time.Millisecond)

	setDefault(&c.Publish.HTTP.Timeout, 10*time.Second)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks struct tags, then the rules that span fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Inference.Provider == ProviderOpenAI && c.Inference.APIKey == "" && c.Inference.BaseURL == "" {
		return fmt.Errorf("inference api_key is required for provider %s", ProviderOpenAI)
	}

	if c.Registry.Driver == DriverPostgres {
		db := c.Registry.Database
		if db.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if db.Port < MinPort || db.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", db.Port, MinPort, MaxPort)
		}
		if db.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if mq := c.Publish.RabbitMQ; mq.Enabled {
		if mq.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if mq.Port < MinPort || mq.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", mq.Port, MinPort, MaxPort)
		}
		if mq.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	if c.Publish.HTTP.Enabled && strings.TrimSpace(c.Publish.HTTP.URL) == "" {
		return fmt.Errorf("publish http url is required")
	}

	return nil
}
