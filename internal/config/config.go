package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	WebSocket   WebSocketConfig
	Leaderboard LeaderboardConfig
	Competition CompetitionConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port           string
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MigrationsPath: путь к папке с SQL-миграциями (file://...)
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Enabled: если false, Redis не используется (кеш в памяти, без кластерного вещания)
	Enabled bool `mapstructure:"enabled"`

	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // мс
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // мс
}

// AuthConfig содержит настройки проверки токенов внешнего провайдера аутентификации
type AuthConfig struct {
	// JWTSecret: общий секрет HS256, которым провайдер подписывает access-токены
	JWTSecret string `mapstructure:"jwt_secret"`
	// Issuer: ожидаемый iss (пусто - не проверяется)
	Issuer string `mapstructure:"issuer"`
}

// WebSocketConfig содержит настройки WebSocket-подсистемы
type WebSocketConfig struct {
	Cluster ClusterConfig
	// ClientSendBuffer: размер буфера исходящих сообщений клиента
	ClientSendBuffer int `mapstructure:"client_send_buffer"`
}

// ClusterConfig содержит настройки кластеризации
type ClusterConfig struct {
	Enabled          bool
	InstanceID       string `mapstructure:"instance_id"`
	BroadcastChannel string `mapstructure:"broadcast_channel"`
}

// LeaderboardConfig содержит настройки кеша лидербордов
type LeaderboardConfig struct {
	// CacheBackend: "memory" (локально для процесса) или "redis" (общий для инстансов)
	CacheBackend    string `mapstructure:"cache_backend"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// CompetitionConfig содержит настройки живых соревнований
type CompetitionConfig struct {
	DefaultTimerSec int `mapstructure:"default_timer_sec"`
	// AutoAdvanceIntervalSec: период опроса истекших таймеров; <= 0 отключает поллер
	AutoAdvanceIntervalSec int `mapstructure:"auto_advance_interval_sec"`
	MaxXPPerAward          int `mapstructure:"max_xp_per_award"`
}

// Validate проверяет обязательные параметры подключения
func (d *DatabaseConfig) Validate() error {
	if d.Host == "" || d.DBName == "" || d.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	return nil
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения и проверяет ее
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase загружает только настройки PostgreSQL (для cmd/migrate)
func LoadDatabase(configPath string) (*DatabaseConfig, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

func read(configPath string) (*Config, error) {
	vip := viper.New()

	// 1. Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 15)
	vip.SetDefault("server.write_timeout", 15)
	vip.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_path", "file://migrations")
	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("websocket.client_send_buffer", 128)
	vip.SetDefault("websocket.cluster.broadcast_channel", "polegion:competition:broadcast")
	vip.SetDefault("leaderboard.cache_backend", "memory")
	vip.SetDefault("leaderboard.cache_ttl_seconds", 300)
	vip.SetDefault("competition.default_timer_sec", 30)
	vip.SetDefault("competition.auto_advance_interval_sec", 2)
	vip.SetDefault("competition.max_xp_per_award", 1000)

	// 2. Привязываем переменные окружения ЯВНО
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.enabled", "REDIS_ENABLED")
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	vip.BindEnv("auth.issuer", "AUTH_ISSUER")

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("websocket.cluster.enabled", "WEBSOCKET_CLUSTER_ENABLED")
	vip.BindEnv("websocket.cluster.instance_id", "WEBSOCKET_INSTANCE_ID")
	vip.BindEnv("leaderboard.cache_backend", "LEADERBOARD_CACHE_BACKEND")

	// 3. Файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Config file '%s' not found, using env vars/defaults", configPath)
			} else {
				log.Printf("Warning: could not read config file '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим конфигурацию
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Loaded configuration ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Enabled: %t (mode: %s)", cfg.Redis.Enabled, cfg.Redis.Mode)
		log.Printf("Leaderboard Cache: %s (ttl %ds)", cfg.Leaderboard.CacheBackend, cfg.Leaderboard.CacheTTLSeconds)
		log.Printf("Auto-advance interval: %ds", cfg.Competition.AutoAdvanceIntervalSec)
		log.Printf("Websocket Cluster Enabled: %t", cfg.WebSocket.Cluster.Enabled)
		log.Printf("----------------------------")
	}

	return &cfg, nil
}

// Validate проверяет обязательные параметры и согласованность секций
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret is required (check AUTH_JWT_SECRET env var)")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	switch c.Leaderboard.CacheBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("leaderboard cache backend 'redis' requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("unsupported leaderboard cache backend: %q", c.Leaderboard.CacheBackend)
	}
	if c.WebSocket.Cluster.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("websocket cluster mode requires redis.enabled=true")
	}
	if c.Competition.DefaultTimerSec <= 0 {
		return fmt.Errorf("competition.default_timer_sec must be positive, got %d", c.Competition.DefaultTimerSec)
	}
	return nil
}
