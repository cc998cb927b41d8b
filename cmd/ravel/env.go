package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// loadEnv pulls a .env file into the environment when one exists. Flags and
// real environment variables win over .env entries.
func loadEnv() {
	_ = godotenv.Load()
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
