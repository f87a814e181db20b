package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                    string
	DatabaseURL             string
	HospitalDirectoryPath   string
	RateLimitPerMinute      int
	RateLimitBurst          int
	HospitalRateLimitPerMin int
	HospitalRateLimitBurst  int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	directory := os.Getenv("HOSPITAL_DIRECTORY_PATH")
	if directory == "" {
		directory = "hospitals.json"
	}

	return Config{
		Port:                    port,
		DatabaseURL:             os.Getenv("DB_DSN"),
		HospitalDirectoryPath:   directory,
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		HospitalRateLimitPerMin: readInt("HOSPITAL_RATE_LIMIT_PER_MIN", 600),
		HospitalRateLimitBurst:  readInt("HOSPITAL_RATE_LIMIT_BURST", 120),
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
