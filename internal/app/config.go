package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string // state directory, e.g. $HOME/.mlsgroup
	LogLevel string // zap level name; empty means "warn"

	// Retention keeps only that many epoch records per group; zero keeps all.
	Retention int
	// KeyPackageLifetime overrides the engine default when positive.
	KeyPackageLifetime time.Duration
	// CacheSize bounds the client's open session cache.
	CacheSize int

	// Registerer receives the group metrics; nil disables them.
	Registerer prometheus.Registerer
}

const (
	databaseFilename = "groups.db"
	defaultLogLevel  = "warn"
)

// NewLogger builds a console logger writing to stderr at level.
func NewLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = defaultLogLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	return cfg.Build()
}
