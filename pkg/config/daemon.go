package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// DaemonConfig holds process-level settings for the deploy daemon. The
// deployment itself (image, container, branch) lives in the deploy file.
type DaemonConfig struct {
	Environment        string
	Addr               string
	DockerHost         string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	HeartbeatTimeout   time.Duration
	RateLimitPerMinute int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

var loadDotEnv sync.Once

// LoadDaemonConfig constructs a DaemonConfig from environment variables,
// reading a .env file from the working directory first when one exists.
func LoadDaemonConfig() DaemonConfig {
	loadEnvFile()
	return DaemonConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("DEPLOY_ADDR", ""),
		DockerHost:         GetString("DOCKER_HOST", ""),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		LogFormat:          GetString("LOG_FORMAT", "json"),
		ShutdownTimeout:    GetSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
		HeartbeatTimeout:   GetSeconds("HEARTBEAT_TIMEOUT_SECONDS", 5),
		RateLimitPerMinute: GetInt("RATE_LIMIT_PER_MINUTE", 0),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

func loadEnvFile() {
	loadDotEnv.Do(func() {
		_ = godotenv.Load()
	})
}
