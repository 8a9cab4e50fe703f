// Package logging provides categorized file-based logging for plcaudit.
// Each pipeline stage writes to its own file under <dir>/logs/ so a long
// analysis run can be inspected per stage. When no directory is configured
// every call is a no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category, one per pipeline stage.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryParse    Category = "parse"    // XML parsing, block extraction
	CategoryShard    Category = "shard"    // Shard assembly
	CategoryDispatch Category = "dispatch" // Batch scheduling, retries
	CategoryAPI      Category = "api"      // Remote analysis calls
	CategoryFusion   Category = "fusion"   // Finding dedup and merge
	CategoryStore    Category = "store"    // Result cache operations
	CategoryReport   Category = "report"   // Report rendering
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger bound to one category's file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	logLevel  = LevelInfo
	configMu  sync.RWMutex
)

// Configure sets up the logging directory and level.
// Call once at startup; an empty dir disables file logging entirely.
func Configure(dir, level string) error {
	configMu.Lock()
	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		configMu.Unlock()
		return fmt.Errorf("unknown log level %q", level)
	}
	configMu.Unlock()

	if dir == "" {
		return nil
	}

	d := filepath.Join(dir, "logs")
	if err := os.MkdirAll(d, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	loggersMu.Lock()
	logsDir = d
	loggersMu.Unlock()

	Get(CategoryBoot).Info("logging initialized (dir=%s, level=%s)", d, level)
	return nil
}

// Get returns (or creates) the logger for a category.
// Returns a no-op logger when file logging is disabled.
func Get(category Category) *Logger {
	loggersMu.RLock()
	dir := logsDir
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func level() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || level() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || level() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || level() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

// Error logs an error message (always written if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	logsDir = ""
}

// Convenience functions, one pair per category.

func Boot(format string, args ...interface{})          { Get(CategoryBoot).Info(format, args...) }
func Parse(format string, args ...interface{})         { Get(CategoryParse).Info(format, args...) }
func ParseDebug(format string, args ...interface{})    { Get(CategoryParse).Debug(format, args...) }
func Shard(format string, args ...interface{})         { Get(CategoryShard).Info(format, args...) }
func ShardDebug(format string, args ...interface{})    { Get(CategoryShard).Debug(format, args...) }
func Dispatch(format string, args ...interface{})      { Get(CategoryDispatch).Info(format, args...) }
func DispatchDebug(format string, args ...interface{}) { Get(CategoryDispatch).Debug(format, args...) }
func API(format string, args ...interface{})           { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{})      { Get(CategoryAPI).Debug(format, args...) }
func Fusion(format string, args ...interface{})        { Get(CategoryFusion).Info(format, args...) }
func FusionDebug(format string, args ...interface{})   { Get(CategoryFusion).Debug(format, args...) }
func Store(format string, args ...interface{})         { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})    { Get(CategoryStore).Debug(format, args...) }
func Report(format string, args ...interface{})        { Get(CategoryReport).Info(format, args...) }

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
