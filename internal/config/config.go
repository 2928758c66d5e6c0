package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the process-level configuration read from the environment.
type AppConfig struct {
	DataPath    string
	LogDir      string
	SnapshotDir string
	EngineFile  string
	Workers     int
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve Data Paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))
	snapshotDir := getEnv("SNAPSHOT_DIR", filepath.Join(dataPath, "snapshot"))

	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", snapshotDir).Msg("Failed to create snapshot directory")
	}

	cfg := &AppConfig{
		DataPath:    dataPath,
		LogDir:      logDir,
		SnapshotDir: snapshotDir,
		EngineFile:  getEnv("WORKGRAPH_CONFIG", filepath.Join(dataPath, "workgraph.yaml")),
		Workers:     getEnvInt("WORKGRAPH_WORKERS", 0),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
