package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint    = "ARB_RPC_ENDPOINT"
	EnvFlashbotsRelay = "ARB_FLASHBOTS_RELAY"
	EnvFlashbotsKey   = "ARB_FLASHBOTS_KEY"
	EnvPrivateKey     = "ARB_PRIVATE_KEY"
	EnvRedisAddr      = "ARB_REDIS_ADDR"
	EnvRedisPassword  = "ARB_REDIS_PASSWORD"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
