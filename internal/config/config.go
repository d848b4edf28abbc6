package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	API       APIConfig       `mapstructure:"api"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`

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

// LogConfig Level 为空时按 server.mode 决定
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioSecure   bool   `mapstructure:"minio_secure"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// APIConfig 处理后端（动作分析、文本简化、手写分析、邮件、PDF报告）
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UploadSeconds  int    `mapstructure:"upload_timeout_seconds"`
	EmailEnabled   bool   `mapstructure:"email_enabled"`
}

// ProgressConfig 评分阈值与合并策略的唯一配置入口
type ProgressConfig struct {
	CompletionThreshold   int    `mapstructure:"completion_threshold"`
	NotifyDoctorThreshold int    `mapstructure:"notify_doctor_threshold"`
	CelebrationThreshold  int    `mapstructure:"celebration_threshold"`
	QuickDurationSeconds  int    `mapstructure:"quick_duration_seconds"`
	ScoreMergePolicy      string `mapstructure:"score_merge_policy"`
}

type RealtimeConfig struct {
	Bus       string `mapstructure:"bus"` // redis | local
	Channel   string `mapstructure:"channel"`
	QueueSize int    `mapstructure:"queue_size"`
}

type JobsConfig struct {
	PruneSpec          string `mapstructure:"prune_spec"`
	ReminderSpec       string `mapstructure:"reminder_spec"`
	NotificationTTLDay int    `mapstructure:"notification_ttl_days"`
	InactiveDays       int    `mapstructure:"inactive_days"`
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)
	viper.SetDefault("jwt.expire_hours", 24)
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "uploads")

	viper.SetDefault("api.base_url", "http://localhost:5000")
	viper.SetDefault("api.timeout_seconds", 30)
	viper.SetDefault("api.upload_timeout_seconds", 60)

	viper.SetDefault("progress.completion_threshold", 50)
	viper.SetDefault("progress.notify_doctor_threshold", 80)
	viper.SetDefault("progress.celebration_threshold", 90)
	viper.SetDefault("progress.quick_duration_seconds", 120)
	viper.SetDefault("progress.score_merge_policy", "keep_max")

	viper.SetDefault("realtime.bus", "redis")
	viper.SetDefault("realtime.channel", "realtime_channel")
	viper.SetDefault("realtime.queue_size", 256)

	viper.SetDefault("jobs.prune_spec", "0 3 * * *")
	viper.SetDefault("jobs.reminder_spec", "0 18 * * *")
	viper.SetDefault("jobs.notification_ttl_days", 30)
	viper.SetDefault("jobs.inactive_days", 3)

	viper.SetDefault("log.file", "logs/app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)

	viper.SetDefault("rate_limit.max_requests", 100000)
	viper.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("LEARNBRIDGE")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// 处理后端
	viper.BindEnv("api.base_url", "API_BASE_URL")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if err := cfg.Progress.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 校验阈值区间，非法配置在加载阶段直接拒绝
func (p ProgressConfig) Validate() error {
	for name, v := range map[string]int{
		"completion_threshold":    p.CompletionThreshold,
		"notify_doctor_threshold": p.NotifyDoctorThreshold,
		"celebration_threshold":   p.CelebrationThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("progress.%s must be within [0,100], got %d", name, v)
		}
	}
	if p.QuickDurationSeconds < 0 {
		return fmt.Errorf("progress.quick_duration_seconds must not be negative")
	}
	switch p.ScoreMergePolicy {
	case "", "keep_max", "overwrite":
	default:
		return fmt.Errorf("progress.score_merge_policy must be keep_max or overwrite, got %q", p.ScoreMergePolicy)
	}
	return nil
}
