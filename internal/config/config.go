package config

import (
	"exam_prep_backend/internal/irt"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Log       LogConfig       `mapstructure:"log"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string // mysql | sqlite
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool   `mapstructure:"parse_time"`
	DSN       string `mapstructure:"dsn"` // sqlite 文件路径
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// ScoringConfig 评分引擎参数，支持热更新
type ScoringConfig struct {
	MaxIterations  int           `mapstructure:"max_iterations"`
	Tolerance      float64       `mapstructure:"tolerance"`
	LearningRate   float64       `mapstructure:"learning_rate"`
	SmoothingAlpha float64       `mapstructure:"smoothing_alpha"`
	AbilityMin     float64       `mapstructure:"ability_min"`
	AbilityMax     float64       `mapstructure:"ability_max"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	MaxSaveRetries int           `mapstructure:"max_save_retries"`
}

func (s ScoringConfig) IRTSettings() irt.Settings {
	return irt.Settings{
		MaxIterations:  s.MaxIterations,
		Tolerance:      s.Tolerance,
		LearningRate:   s.LearningRate,
		SmoothingAlpha: s.SmoothingAlpha,
		MinAbility:     s.AbilityMin,
		MaxAbility:     s.AbilityMax,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)

	v.SetDefault("log.path", "logs/app.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("scoring.max_iterations", irt.DefaultMaxIterations)
	v.SetDefault("scoring.tolerance", irt.DefaultTolerance)
	v.SetDefault("scoring.learning_rate", irt.DefaultLearningRate)
	v.SetDefault("scoring.smoothing_alpha", irt.DefaultSmoothingAlpha)
	v.SetDefault("scoring.ability_min", irt.MinAbility)
	v.SetDefault("scoring.ability_max", irt.MaxAbility)
	v.SetDefault("scoring.lock_ttl", "10s")
	v.SetDefault("scoring.cache_ttl", "5m")
	v.SetDefault("scoring.max_save_retries", 5)

	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

// LoadConfig 从 path 目录读取 config.yaml，环境变量优先
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EXAM_PREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.dsn", "DATABASE_DSN")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Scoring.AbilityMin >= cfg.Scoring.AbilityMax {
		return nil, fmt.Errorf("scoring.ability_min (%v) must be below scoring.ability_max (%v)", cfg.Scoring.AbilityMin, cfg.Scoring.AbilityMax)
	}

	return &cfg, nil
}
