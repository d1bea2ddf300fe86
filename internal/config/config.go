package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the whole leadflow server configuration
type Config struct {
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Engine EngineConfig `mapstructure:"engine"`
	AI     AIConfig     `mapstructure:"ai"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  string        `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// StoreConfig selects the durable Response Store backend
type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // mongo or sqlite
	MongoURI   string `mapstructure:"mongo_uri"`
	MongoDB    string `mapstructure:"mongo_db"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RedisConfig configures the session cache and lock. Empty Addr disables Redis.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Enabled reports whether a Redis address is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// NormalizedAddr strips a redis:// prefix
func (c RedisConfig) NormalizedAddr() string {
	return strings.TrimPrefix(c.Addr, "redis://")
}

type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	HostUsername    string        `mapstructure:"host_username"`
	HostPassword    string        `mapstructure:"host_password"`
	HostClientID    string        `mapstructure:"host_client_id"` // Empty lets the host watch any client
	SessionTokenTTL time.Duration `mapstructure:"session_token_ttl"`
}

// EngineConfig tunes the session flow engine
type EngineConfig struct {
	TextGenTimeout     time.Duration `mapstructure:"textgen_timeout"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	LockWait           time.Duration `mapstructure:"lock_wait"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"` // 0 disables the sweeper
	PersistWorkers     int           `mapstructure:"persist_workers"`
	PersistQueueSize   int           `mapstructure:"persist_queue_size"`
	PersistMaxAttempts int           `mapstructure:"persist_max_attempts"`
	PersistBackoffBase time.Duration `mapstructure:"persist_backoff_base"`
	PersistMaxBackoff  time.Duration `mapstructure:"persist_max_backoff"`
	RephraseQuestions  bool          `mapstructure:"rephrase_questions"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            "8080",
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  "*",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Driver:     "mongo",
			MongoURI:   "mongodb://localhost:27017",
			MongoDB:    "leadflow",
			SQLitePath: "leadflow.db",
		},
		Redis: RedisConfig{SessionTTL: 2 * time.Hour},
		Auth: AuthConfig{
			JWTSecret:       "super-secret-key-change-in-production",
			HostUsername:    "admin",
			HostPassword:    "password123",
			SessionTokenTTL: 24 * time.Hour,
		},
		Engine: EngineConfig{
			TextGenTimeout:     4 * time.Second,
			LockTTL:            15 * time.Second,
			LockWait:           2 * time.Second,
			PersistWorkers:     4,
			PersistQueueSize:   256,
			PersistMaxAttempts: 5,
			PersistBackoffBase: 200 * time.Millisecond,
			PersistMaxBackoff:  5 * time.Second,
			RephraseQuestions:  true,
		},
		AI: DefaultAIConfig(),
	}
}

// Load reads configuration from an optional file and LEADFLOW_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy names used by the deployment manifests
	_ = v.BindEnv("store.mongo_uri", "LEADFLOW_STORE_MONGO_URI", "MONGO_URI")
	_ = v.BindEnv("redis.addr", "LEADFLOW_REDIS_ADDR", "REDIS_URI", "REDIS_ADDR")
	_ = v.BindEnv("http.port", "LEADFLOW_HTTP_PORT", "PORT")
	_ = v.BindEnv("auth.jwt_secret", "LEADFLOW_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("ai.api_key", "LEADFLOW_AI_API_KEY", "GEMINI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config is usable
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongo driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be 'mongo' or 'sqlite', got %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Engine.TextGenTimeout <= 0 {
		return fmt.Errorf("engine.textgen_timeout must be positive")
	}
	if c.Engine.PersistWorkers <= 0 {
		return fmt.Errorf("engine.persist_workers must be positive")
	}
	if c.Engine.PersistMaxAttempts <= 0 {
		return fmt.Errorf("engine.persist_max_attempts must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.mongo_uri", d.Store.MongoURI)
	v.SetDefault("store.mongo_db", d.Store.MongoDB)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.session_ttl", d.Redis.SessionTTL)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.host_username", d.Auth.HostUsername)
	v.SetDefault("auth.host_password", d.Auth.HostPassword)
	v.SetDefault("auth.host_client_id", d.Auth.HostClientID)
	v.SetDefault("auth.session_token_ttl", d.Auth.SessionTokenTTL)
	v.SetDefault("engine.textgen_timeout", d.Engine.TextGenTimeout)
	v.SetDefault("engine.lock_ttl", d.Engine.LockTTL)
	v.SetDefault("engine.lock_wait", d.Engine.LockWait)
	v.SetDefault("engine.sweep_interval", d.Engine.SweepInterval)
	v.SetDefault("engine.persist_workers", d.Engine.PersistWorkers)
	v.SetDefault("engine.persist_queue_size", d.Engine.PersistQueueSize)
	v.SetDefault("engine.persist_max_attempts", d.Engine.PersistMaxAttempts)
	v.SetDefault("engine.persist_backoff_base", d.Engine.PersistBackoffBase)
	v.SetDefault("engine.persist_max_backoff", d.Engine.PersistMaxBackoff)
	v.SetDefault("engine.rephrase_questions", d.Engine.RephraseQuestions)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.models.rephrase", d.AI.Models.Rephrase)
	v.SetDefault("ai.models.closing", d.AI.Models.Closing)
	v.SetDefault("ai.timeout_ms", d.AI.TimeoutMS)
}
