// Package logging provides config-driven categorized logging for partialmodel.
// Each category gets a named zap logger; when debug mode is off every category
// is a no-op so library code can log unconditionally.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config loading
	CategoryMapping Category = "mapping" // Specification to store mapping
	CategoryStore   Category = "store"   // Store and snapshot operations
	CategoryQuery   Category = "query"   // Views, atoms, runtime context
	CategoryEngine  Category = "engine"  // Mangle engine operations
)

// Config mirrors config.LoggingConfig to avoid circular imports.
type Config struct {
	DebugMode   bool
	Level       string
	Format      string // json, console
	OutputPaths []string
	Categories  map[string]bool
}

// Logger is a category-scoped sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	config  Config
	loggers = make(map[Category]*Logger)
	nop     = zap.NewNop()
)

// Initialize builds the base zap logger from cfg. It is safe to call more than once;
// loggers handed out earlier keep their old core.
func Initialize(cfg Config) error {
	if !cfg.DebugMode {
		mu.Lock()
		config = cfg
		base = nil
		loggers = make(map[Category]*Logger)
		mu.Unlock()
		return nil
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	if len(cfg.OutputPaths) > 0 {
		zcfg.OutputPaths = cfg.OutputPaths
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	config = cfg
	base = logger
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s", cfg.Level, cfg.Format)
	return nil
}

// Use installs an existing zap logger as the base for all categories and turns debug mode on.
func Use(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = logger
	config.DebugMode = logger != nil
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !config.DebugMode || base == nil {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	z := nop
	if categoryEnabledLocked(category) {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// FromZap wraps a caller-supplied zap logger as a category logger.
// A nil logger falls back to Get(category).
func FromZap(category Category, z *zap.Logger) *Logger {
	if z == nil {
		return Get(category)
	}
	return &Logger{category: category, sugar: z.Named(string(category)).Sugar()}
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// With returns a child logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes the base logger (call at shutdown).
func Sync() {
	mu.RLock()
	b := base
	mu.RUnlock()
	if b != nil {
		_ = b.Sync()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// QueryDebug logs debug to the query category
func QueryDebug(format string, args ...interface{}) {
	Get(CategoryQuery).Debug(format, args...)
}
