package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Watch re-reads the config file whenever it is written and passes the decoded
// result to apply. Without a config file on disk there is nothing to watch and
// Watch returns nil.
func Watch(configPath string, logger zerolog.Logger, apply func(*Config)) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Debug().Msg("no config file found, hot reload disabled")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(in fsnotify.Event) {
		if !in.Has(fsnotify.Write) && !in.Has(fsnotify.Create) {
			return
		}

		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Warn().Err(err).Str("file", in.Name).Msg("config reload rejected")
			return
		}

		logger.Info().Str("file", in.Name).Str("op", in.Op.String()).Msg("config reloaded")
		apply(&cfg)
	})
	v.WatchConfig()

	return nil
}

// ParseLogLevel maps a configured level onto zerolog, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
