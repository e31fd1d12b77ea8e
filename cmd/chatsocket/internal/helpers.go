package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/config"
)

// Set by the root command's persistent flags.
var (
	ConfigPath string
	LogLevel   = "info"
)

func LoadConfig() (*config.File, error) {
	return config.Load(ConfigPath)
}

// NewLogger returns a console logger on stderr at the --log-level level.
func NewLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", LogLevel, err)
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Setup loads the config and builds the logger.
func Setup() (*config.File, zerolog.Logger, error) {
	logger, err := NewLogger()
	if err != nil {
		return nil, logger, err
	}
	cfg, err := LoadConfig()
	if err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}
