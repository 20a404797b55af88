package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	TLS         bool   `mapstructure:"tls"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DeliveryConfig struct {
	// Provider is "backend" or "telegram".
	Provider       string        `mapstructure:"provider"`
	TelegramToken  string        `mapstructure:"telegram_token"`
	HandoffChatID  int64         `mapstructure:"handoff_chat_id"`
	TelegramMarkup bool          `mapstructure:"telegram_markup"`
	// Timeout bounds each Telegram API call.
	Timeout        time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	HistoryLimit         int           `mapstructure:"history_limit"`
	ShortTermTTL         time.Duration `mapstructure:"short_term_ttl"`
	ProcessedTTL         time.Duration `mapstructure:"processed_ttl"`
	DefaultMaxIterations int           `mapstructure:"default_max_iterations"`
	SummaryEvery         int           `mapstructure:"summary_every"`
	SummaryTimeout       time.Duration `mapstructure:"summary_timeout"`
	Persona              string        `mapstructure:"persona"`
}

type QueueConfig struct {
	Key           string        `mapstructure:"key"`
	DeadLetterKey string        `mapstructure:"dead_letter_key"`
	Concurrency   int           `mapstructure:"concurrency"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInitial  time.Duration `mapstructure:"retry_initial"`
	RetryMax      time.Duration `mapstructure:"retry_max"`
	RetryFactor   float64       `mapstructure:"retry_factor"`
	RetryJitter   float64       `mapstructure:"retry_jitter"`
}

const (
	ProviderBackend  = "backend"
	ProviderTelegram = "telegram"
)

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(strings.Trim(strings.TrimSpace(dbURL), `"'`))
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return DatabaseConfig{}, errors.New("missing host")
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", p)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// parseRedisURL accepts redis:// and rediss:// (TLS) URLs.
func parseRedisURL(redisURL string) (RedisConfig, error) {
	u, err := url.Parse(strings.Trim(strings.TrimSpace(redisURL), `"'`))
	if err != nil {
		return RedisConfig{}, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return RedisConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return RedisConfig{}, errors.New("missing host")
	}

	port := 6379
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("invalid port %q", p)
		}
	}

	db := 0
	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err = strconv.Atoi(path)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("invalid database %q", path)
		}
	}

	password, _ := u.User.Password()
	return RedisConfig{
		Host:     u.Hostname(),
		Port:     port,
		Username: u.User.Username(),
		Password: password,
		DB:       db,
		TLS:      u.Scheme == "rediss",
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)

	v.SetDefault("log.development", false)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.use_in_memory", false)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4-turbo-preview")
	v.SetDefault("openai.max_tokens", 0)
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("backend.url", "http://localhost:3001")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 10*time.Second)

	v.SetDefault("delivery.provider", ProviderBackend)
	v.SetDefault("delivery.telegram_token", "")
	v.SetDefault("delivery.handoff_chat_id", 0)
	v.SetDefault("delivery.telegram_markup", false)
	v.SetDefault("delivery.timeout", 10*time.Second)

	v.SetDefault("agent.history_limit", 20)
	v.SetDefault("agent.short_term_ttl", 30*time.Minute)
	v.SetDefault("agent.processed_ttl", 24*time.Hour)
	v.SetDefault("agent.default_max_iterations", 5)
	v.SetDefault("agent.summary_every", 5)
	v.SetDefault("agent.summary_timeout", 45*time.Second)
	v.SetDefault("agent.persona", "Você é um assistente de IA para um salão de beleza.")

	v.SetDefault("queue.key", "agent:jobs")
	v.SetDefault("queue.dead_letter_key", "agent:jobs:dead")
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.poll_timeout", 5*time.Second)
	v.SetDefault("queue.job_timeout", 2*time.Minute)
	v.SetDefault("queue.retry_attempts", 5)
	v.SetDefault("queue.retry_initial", 200*time.Millisecond)
	v.SetDefault("queue.retry_max", 30*time.Second)
	v.SetDefault("queue.retry_factor", 2.0)
	v.SetDefault("queue.retry_jitter", 0.1)
}

// LoadConfig reads path (if it exists), a local .env file (if it exists) and
// the environment, then validates the result.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.UseInMemory = config.Database.UseInMemory
		config.Database = dbConfig
	}

	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		redisConfig, err := parseRedisURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		redisConfig.UseInMemory = config.Redis.UseInMemory
		config.Redis = redisConfig
	}

	// Get other environment variables
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if backendURL := v.GetString("NEST_API_URL"); backendURL != "" {
		config.Backend.URL = backendURL
	}
	if apiKey := v.GetString("AGENT_API_KEY"); apiKey != "" {
		config.Backend.APIKey = apiKey
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Delivery.TelegramToken = token
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every missing credential at once.
func (c *Config) Validate() error {
	var problems []string

	if c.OpenAI.APIKey == "" {
		problems = append(problems, "openai.api_key (OPENAI_API_KEY) is required")
	}
	if !c.Database.UseInMemory {
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			problems = append(problems, "database host, dbname and user (or DATABASE_URL) are required")
		}
	}
	if !c.Redis.UseInMemory && c.Redis.Host == "" {
		problems = append(problems, "redis.host (or REDIS_URL) is required")
	}

	// Business tools always go through the backend, whatever the delivery provider.
	if _, err := url.ParseRequestURI(c.Backend.URL); err != nil {
		problems = append(problems, "backend.url (NEST_API_URL) must be a valid URL")
	}

	switch c.Delivery.Provider {
	case ProviderBackend:
	case ProviderTelegram:
		if c.Delivery.TelegramToken == "" {
			problems = append(problems, "delivery.telegram_token (TELEGRAM_TOKEN) is required for the telegram provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("delivery.provider %q is not one of backend, telegram", c.Delivery.Provider))
	}

	if c.Queue.Concurrency < 1 {
		problems = append(problems, "queue.concurrency must be at least 1")
	}
	if c.Agent.HistoryLimit < 1 {
		problems = append(problems, "agent.history_limit must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
