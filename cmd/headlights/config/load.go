package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func LoadConfig(cfgFile string) (*HeadlightsConfig, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("headlights")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/headlights/")
	}

	viper.SetEnvPrefix("HEADLIGHTS") // env vars like HEADLIGHTS_OUTPUT__BASE_PATH
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	viper.SetDefault("output.filename", "part.txt")
	viper.SetDefault("output.strict_path", true)
	viper.SetDefault("runner.bundle_size", 16)
	viper.SetDefault("runner.parallelism", 4)
	viper.SetDefault("runner.max_attempts", 3)
	viper.SetDefault("runner.initial_backoff", 100*time.Millisecond)
	viper.SetDefault("runner.max_backoff", 5*time.Second)
	viper.SetDefault("storage.ftp.conn_timeout", 10*time.Second)

	viper.BindEnv("output.base_path")
	viper.BindEnv("output.filename")
	viper.BindEnv("output.compression")
	viper.BindEnv("output.strict_path")

	viper.BindEnv("input.path")
	viper.BindEnv("input.format")

	viper.BindEnv("runner.bundle_size")
	viper.BindEnv("runner.parallelism")
	viper.BindEnv("runner.max_attempts")
	viper.BindEnv("runner.speculative")
	viper.BindEnv("runner.initial_backoff")
	viper.BindEnv("runner.max_backoff")

	viper.BindEnv("storage.s3.region")
	viper.BindEnv("storage.s3.endpoint")
	viper.BindEnv("storage.s3.access_key_id")
	viper.BindEnv("storage.s3.secret_access_key")
	viper.BindEnv("storage.gcs.access_key_id")
	viper.BindEnv("storage.gcs.secret_access_key")
	viper.BindEnv("storage.azure.account")
	viper.BindEnv("storage.azure.key")
	viper.BindEnv("storage.ftp.user")
	viper.BindEnv("storage.ftp.password")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if viper.ConfigFileUsed() != "" {
		log.Printf("Loaded config from %s", viper.ConfigFileUsed())
	}

	var cfg HeadlightsConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Output.BasePath == "" {
		return nil, errors.New("output.base_path must be set (check config/env/flags)")
	}

	return &cfg, nil
}
