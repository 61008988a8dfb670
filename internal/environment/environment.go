package environment

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	envFileDevelopment = ".env.development"
	envFileProduction  = ".env.production"

	defaultStorePath         = "broadcasts.yaml"
	defaultStatusInterval    = 5 * time.Second
	defaultPublisherICEGrace = 10 * time.Second
)

func LoadEnvironmentVariables() {
	if err := loadConfigs(); err != nil {
		log.Warn().Err(err).Msg("Environment: Failed to find config in CWD, changing CWD to executable path")

		executablePath, executableErr := os.Executable()
		if executableErr != nil {
			log.Fatal().Err(executableErr).Msg("Environment")
		}

		if chdirErr := os.Chdir(filepath.Dir(executablePath)); chdirErr != nil {
			log.Fatal().Err(chdirErr).Msg("Environment")
		}

		if retryErr := loadConfigs(); retryErr != nil {
			log.Fatal().Err(retryErr).Msg("Environment")
		}
	}

	setDefaultEnvironmentVariables()
}

func loadConfigs() error {
	envFile := envFileProduction
	if os.Getenv(AppEnv) == "development" {
		envFile = envFileDevelopment
	}

	log.Info().Str("file", envFile).Msg("Environment: Loading")
	if err := godotenv.Load(envFile); err != nil {
		log.Warn().Err(err).Str("file", envFile).Msg("Environment: Could not load")
	}

	if _, err := os.Stat(GetStorePath()); err != nil {
		return err
	}

	return nil
}

func setDefaultEnvironmentVariables() {
	if os.Getenv(StorePath) == "" {
		log.Info().Str("value", defaultStorePath).Msg("Environment: Setting STORE_PATH")
		if err := os.Setenv(StorePath, defaultStorePath); err != nil {
			log.Panic().Err(err).Msg("Error setting default value for STORE_PATH")
		}
	}
}

func GetStorePath() string {
	if storePath := os.Getenv(StorePath); storePath != "" {
		return storePath
	}

	return defaultStorePath
}

// GetPublicURL is the base of the WHIP teardown URL, without a trailing slash
func GetPublicURL() string {
	return strings.TrimSuffix(os.Getenv(PublicURL), "/")
}

func GetStatusInterval() time.Duration {
	if interval := getDuration(StatusInterval, defaultStatusInterval); interval > 0 {
		return interval
	}

	return defaultStatusInterval
}

func GetPublisherICEGrace() time.Duration {
	return getDuration(PublisherICEGrace, defaultPublisherICEGrace)
}

// IsEnabled reads a boolean switch, "true" in any case enables it
func IsEnabled(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}

// GetList splits a `|` separated variable, dropping empty entries
func GetList(key string) []string {
	values := []string{}
	for value := range strings.SplitSeq(os.Getenv(key), "|") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}

	return values
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	duration, err := time.ParseDuration(value)
	if err != nil || duration < 0 {
		log.Warn().Err(err).Str("key", key).Str("value", value).Dur("fallback", fallback).Msg("Environment: Invalid duration")
		return fallback
	}

	return duration
}
