//go:build !(darwin || freebsd || linux)

package dl

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/errors"
)

// Config is accepted for API compatibility.
type Config struct {
	Logger  *zap.Logger
	Symbol  func(tok bind.Token) string
	Version string
}

// Engine is unavailable on this platform.
type Engine struct {
	engine.Backend
}

// Open always fails on this platform.
func Open(path string, db *classdb.DB, cfg *Config) (*Engine, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "shared library engines on "+runtime.GOOS)
}
