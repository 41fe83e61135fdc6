package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Replicate ReplicateConfig
	Relay     RelayConfig
	Poll      PollConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	BodyLimit int
}

type ReplicateConfig struct {
	APIToken     string
	BaseURL      string
	ModelVersion string
	Timeout      time.Duration
}

type RelayConfig struct {
	StreamTimeout   time.Duration
	DownloadTimeout time.Duration
	ChunkSize       int
	UserAgent       string
	Filename        string
	AllowedHosts    []string
}

type PollConfig struct {
	MinInterval time.Duration
	WSInterval  time.Duration
}

type RateLimitConfig struct {
	GeneratePerHour int
	WatchPerMinute  int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	Audience  string
}

type MetricsConfig struct {
	Enabled bool
}

// IsProduction reports whether the server runs with production settings.
func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REPLICATE_API_TOKEN")
	readSecret("REDIS_PASSWORD")
	readSecret("AUTH_JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.body_limit", "SERVER_BODY_LIMIT")
	_ = v.BindEnv("replicate.api_token", "REPLICATE_API_TOKEN")
	_ = v.BindEnv("replicate.base_url", "REPLICATE_BASE_URL")
	_ = v.BindEnv("replicate.model_version", "REPLICATE_MODEL_VERSION")
	_ = v.BindEnv("replicate.timeout", "REPLICATE_TIMEOUT")
	_ = v.BindEnv("relay.stream_timeout", "RELAY_STREAM_TIMEOUT")
	_ = v.BindEnv("relay.download_timeout", "RELAY_DOWNLOAD_TIMEOUT")
	_ = v.BindEnv("relay.chunk_size", "RELAY_CHUNK_SIZE")
	_ = v.BindEnv("relay.user_agent", "RELAY_USER_AGENT")
	_ = v.BindEnv("relay.filename", "RELAY_FILENAME")
	_ = v.BindEnv("relay.allowed_hosts", "RELAY_ALLOWED_HOSTS")
	_ = v.BindEnv("poll.min_interval", "POLL_MIN_INTERVAL_MS")
	_ = v.BindEnv("poll.ws_interval", "POLL_WS_INTERVAL_MS")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.watch_per_minute", "RATELIMIT_WATCH_PER_MINUTE")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	_ = v.BindEnv("auth.issuer", "AUTH_ISSUER")
	_ = v.BindEnv("auth.audience", "AUTH_AUDIENCE")
	_ = v.BindEnv("metrics.enabled", "METRICS_ENABLED")

	// Defaults
	v.SetDefault("server.port", "5001")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit", 1024*1024)

	v.SetDefault("replicate.api_token", "")
	v.SetDefault("replicate.base_url", "https://api.replicate.com")
	v.SetDefault("replicate.model_version", "671ac645ce5e552cc63a54a2bbff63fcf798043055d2dac5fc9e36a837eedcfb")
	v.SetDefault("replicate.timeout", 10) // seconds

	v.SetDefault("relay.stream_timeout", 60)    // seconds
	v.SetDefault("relay.download_timeout", 120) // seconds
	v.SetDefault("relay.chunk_size", 8192)
	v.SetDefault("relay.user_agent", "Auralis/1.0")
	v.SetDefault("relay.filename", "auralis-generated.mp3")
	v.SetDefault("relay.allowed_hosts", []string{"replicate.delivery"})

	v.SetDefault("poll.min_interval", 1000) // milliseconds
	v.SetDefault("poll.ws_interval", 3000)  // milliseconds

	v.SetDefault("ratelimit.generate_per_hour", 30)
	v.SetDefault("ratelimit.watch_per_minute", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("metrics.enabled", true)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			BodyLimit: v.GetInt("server.body_limit"),
		},
		Replicate: ReplicateConfig{
			APIToken:     strings.TrimSpace(v.GetString("replicate.api_token")),
			BaseURL:      strings.TrimRight(v.GetString("replicate.base_url"), "/"),
			ModelVersion: v.GetString("replicate.model_version"),
			Timeout:      time.Duration(v.GetInt("replicate.timeout")) * time.Second,
		},
		Relay: RelayConfig{
			StreamTimeout:   time.Duration(v.GetInt("relay.stream_timeout")) * time.Second,
			DownloadTimeout: time.Duration(v.GetInt("relay.download_timeout")) * time.Second,
			ChunkSize:       v.GetInt("relay.chunk_size"),
			UserAgent:       v.GetString("relay.user_agent"),
			Filename:        v.GetString("relay.filename"),
			AllowedHosts:    splitList(v.GetStringSlice("relay.allowed_hosts")),
		},
		Poll: PollConfig{
			MinInterval: time.Duration(v.GetInt("poll.min_interval")) * time.Millisecond,
			WSInterval:  time.Duration(v.GetInt("poll.ws_interval")) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			WatchPerMinute:  v.GetInt("ratelimit.watch_per_minute"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("auth.enabled"),
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			Audience:  v.GetString("auth.audience"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
	}

	return cfg, nil
}

// splitList flattens comma-separated entries, which is how list values
// arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
