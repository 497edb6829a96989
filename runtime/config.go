package runtime

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/nativebind/errors"
)

// Config holds runtime settings, usually read from YAML.
type Config struct {
	// LogLevel is a zap level name used by NewLogger. Empty means info.
	LogLevel string `yaml:"log_level"`

	// Preload resolves every method bind of every class in New. A missing
	// bind makes New fail.
	Preload bool `yaml:"preload"`

	// DebugHandles asks the backend whether borrowed objects are still
	// alive on every handle resolution, when the backend can tell.
	DebugHandles bool `yaml:"debug_handles"`

	// StrictVersion makes an incompatible engine version fatal instead of
	// a warning.
	StrictVersion bool `yaml:"strict_version"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, path)
	}
	if _, err := cfg.level(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) level() (zap.AtomicLevel, error) {
	if c.LogLevel == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return lvl, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log_level").Value(c.LogLevel).Cause(err).Build()
	}
	return lvl, nil
}

// NewLogger builds a console logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = lvl
	zc.DisableStacktrace = true
	return zc.Build()
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger *zap.Logger
	cfg    Config
}

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger for the runtime and its components.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}
