// Package logging provides config-driven categorized logging for paperslides.
// Every category is a named zap logger; categories can be switched off
// individually. When debug mode is on, output is also appended to a per-day
// file under the configured logs directory.
// Before Initialize is called every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config resolution
	CategoryFetch    Category = "fetch"    // arXiv search and downloads
	CategoryExtract  Category = "extract"  // PDF text extraction and structuring
	CategoryPrompt   Category = "prompt"   // Prompt construction
	CategoryAPI      Category = "api"      // LLM API calls
	CategorySlides   Category = "slides"   // Deck generation and checks
	CategoryDataset  Category = "dataset"  // Finetuning dataset preparation
	CategoryTraining Category = "training" // Training plans and trainer runs
	CategoryStore    Category = "store"    // Catalog operations
	CategoryWatch    Category = "watch"    // Raw directory watcher
	CategoryExport   Category = "export"   // HTML/PDF export
	CategoryMCP      Category = "mcp"      // MCP tool server
	CategoryManifest Category = "manifest" // Requirements manifest handling
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	CategoryBoot, CategoryFetch, CategoryExtract, CategoryPrompt, CategoryAPI,
	CategorySlides, CategoryDataset, CategoryTraining, CategoryStore,
	CategoryWatch, CategoryExport, CategoryMCP, CategoryManifest,
}

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	DebugMode  bool            // also write to LogsDir
	JSONFormat bool            // JSON encoder instead of console
	Categories map[string]bool // nil = all enabled
	LogsDir    string
	Output     zapcore.WriteSyncer // defaults to stderr
}

// Logger wraps a sugared zap logger for one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	root     *zap.Logger = zap.NewNop()
	opts     Options
	loggers  = make(map[Category]*Logger)
	logFile  *os.File
	levelVar = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize builds the root logger. It can be called again to reconfigure.
func Initialize(o Options) error {
	level, err := parseLevel(o.Level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	levelVar.SetLevel(level)

	var enc zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if o.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	out := o.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, out, levelVar)}

	if o.DebugMode && o.LogsDir != "" {
		if err := os.MkdirAll(o.LogsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		name := fmt.Sprintf("%s_paperslides.log", time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(o.LogsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(f), zapcore.DebugLevel))
	}

	root = zap.New(zapcore.NewTee(cores...))
	opts = o
	loggers = make(map[Category]*Logger)

	root.Named(string(CategoryBoot)).Sugar().Debugf("logging initialized (level=%s, debug=%v, json=%v)", level, o.DebugMode, o.JSONFormat)
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLevel changes the console level at runtime.
func SetLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	levelVar.SetLevel(l)
	return nil
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
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

	base := root
	if !categoryEnabledLocked(category) {
		base = zap.NewNop()
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Zap exposes the underlying logger for libraries that want a *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered output. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// CloseAll flushes and closes the log file, resetting to a no-op logger.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	root = zap.NewNop()
	opts = Options{}
	loggers = make(map[Category]*Logger)
}

func closeLocked() {
	_ = root.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Fetch logs to the fetch category
func Fetch(format string, args ...interface{}) { Get(CategoryFetch).Info(format, args...) }

// FetchDebug logs debug to the fetch category
func FetchDebug(format string, args ...interface{}) { Get(CategoryFetch).Debug(format, args...) }

// Extract logs to the extract category
func Extract(format string, args ...interface{}) { Get(CategoryExtract).Info(format, args...) }

// ExtractDebug logs debug to the extract category
func ExtractDebug(format string, args ...interface{}) { Get(CategoryExtract).Debug(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Slides logs to the slides category
func Slides(format string, args ...interface{}) { Get(CategorySlides).Info(format, args...) }

// Dataset logs to the dataset category
func Dataset(format string, args ...interface{}) { Get(CategoryDataset).Info(format, args...) }

// Training logs to the training category
func Training(format string, args ...interface{}) { Get(CategoryTraining).Info(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Watch logs to the watch category
func Watch(format string, args ...interface{}) { Get(CategoryWatch).Info(format, args...) }

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debug(format, args...) }

// =============================================================================
// TIMING
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
