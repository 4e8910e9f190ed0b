package config

import "time"

// ClientConfig holds settings for the deployctl command line tool.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LoadClientConfig constructs a ClientConfig from environment variables.
func LoadClientConfig() ClientConfig {
	loadEnvFile()
	return ClientConfig{
		BaseURL: GetString("DEPLOY_URL", "http://127.0.0.1:8080"),
		Timeout: GetSeconds("DEPLOY_TIMEOUT_SECONDS", 15),
	}
}
