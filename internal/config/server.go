package config

// GetListenAddr returns the address the HTTP server binds to.
func GetListenAddr() string {
	return GetEnvOrDefault("PARLEY_ADDR", ":8080")
}

// GetLogLevel returns the configured zerolog level name.
func GetLogLevel() string {
	return GetEnvOrDefault("LOG_LEVEL", "info")
}
