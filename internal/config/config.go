// Package config holds application settings sourced from environment
// variables (populated from a .env file in main).
package config

import "os"

// Config carries connection settings that flags may leave to the
// environment.
type Config struct {
	DatabaseURL   string // DATABASE_URL, sql target fallback DSN
	MongoURL      string // MONGO_URL, mongo target fallback DSN
	MongoDatabase string // MONGO_DATABASE, defaults to "ingest"
}

// Load reads the environment. Missing values are not an error here;
// the CLI validates that a DSN exists for the chosen target.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURL:      os.Getenv("MONGO_URL"),
		MongoDatabase: os.Getenv("MONGO_DATABASE"),
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "ingest"
	}
	return cfg
}
