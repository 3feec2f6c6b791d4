package config

import "os"

// Config carries the runtime settings read from the environment. godotenv
// loads a local .env file before this is populated.
type Config struct {
	HTTPAddr    string
	PostgresDSN string
	RedisAddr   string
	RedisURL    string
	JWTSecret   string
	LMSBaseURL  string
}

// Load reads the configuration from environment variables, applying local
// development defaults where a variable is unset.
func Load() *Config {
	return &Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		PostgresDSN: getenv("POSTGRES_DSN", "host=localhost user=user password=password dbname=classhubdb port=5432 sslmode=disable"),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:   getenv("JWT_SECRET", "dev-only-secret"),
		LMSBaseURL:  getenv("LMS_BASE_URL", "http://localhost:8000"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
