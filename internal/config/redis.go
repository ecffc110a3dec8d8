package config

import (
	"github.com/rs/zerolog/log"
)

// GetRedisURL returns the Redis address, or "" when thread storage should
// fall back to memory.
func GetRedisURL() string {
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		log.Debug().Msg("REDIS_URL not set - thread storage falls back to memory")
	}
	return value
}

// GetRedisPassword returns the Redis password, or "" for unauthenticated
// instances.
func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}
