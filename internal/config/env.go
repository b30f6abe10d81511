package config

import (
	"os"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; the first one present is loaded.
var envFiles = []string{".env", ".env.local"}

// loadEnvFile loads KEY=VALUE pairs from the first existing .env file in dir.
// godotenv.Load never overrides variables already present in the process environment.
// It returns the loaded file name, or "" when none exists.
func loadEnvFile(dir string) (string, error) {
	for _, name := range envFiles {
		path := name
		if dir != "" {
			path = dir + string(os.PathSeparator) + name
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", nil
}
