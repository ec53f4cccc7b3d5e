package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvLoader handles loading environment variables from .env files.
type EnvLoader struct {
	loaded  map[string]string
	baseDir string
}

// NewEnvLoader creates a new environment loader.
func NewEnvLoader(baseDir string) *EnvLoader {
	return &EnvLoader{
		baseDir: baseDir,
		loaded:  make(map[string]string),
	}
}

// LoadEnvFiles loads environment variables from .env files in priority order.
// Later files override earlier ones; variables already present in the process
// environment are never overridden.
func (l *EnvLoader) LoadEnvFiles(environment string) error {
	envFiles := []string{
		".env.defaults",
		fmt.Sprintf(".env.%s", environment),
		".env.local",
		".env",
	}

	for _, filename := range envFiles {
		path := filepath.Join(l.baseDir, filename)
		values, err := godotenv.Read(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", filename, err)
		}
		for key, value := range values {
			l.loaded[key] = value
		}
	}

	for key, value := range l.loaded {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set environment variable %s: %w", key, err)
		}
	}

	return nil
}

// GetLoadedVars returns all loaded environment variables.
func (l *EnvLoader) GetLoadedVars() map[string]string {
	result := make(map[string]string, len(l.loaded))
	for k, v := range l.loaded {
		result[k] = v
	}
	return result
}

// AutoLoadEnv loads environment files for the environment named by ENV or
// ENVIRONMENT, defaulting to development.
func AutoLoadEnv(baseDir string) error {
	loader := NewEnvLoader(baseDir)

	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = EnvDevelopment
	}

	return loader.LoadEnvFiles(env)
}
