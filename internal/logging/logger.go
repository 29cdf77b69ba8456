// Package logging provides categorized structured logging for webatlas.
// Each subsystem logs through a named zap logger sharing one core; when
// debug mode is enabled the core additionally appends JSON lines to
// webatlas.log under <root>/.webatlas/logs/.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryDiscovery Category = "discovery" // robots/sitemap/crawl
	CategoryBrowser   Category = "browser"   // session pool, navigation, capture
	CategoryLLM       Category = "llm"       // provider calls, retries, fallback
	CategoryAnalysis  Category = "analysis"  // validation, quality scoring
	CategoryWorkflow  Category = "workflow"  // queue, checkpoints, progress
	CategoryArtifacts Category = "artifacts" // disk writes, locks
	CategoryDocgen    Category = "docgen"    // report generation
	CategoryTools     Category = "tools"     // tool registry dispatch
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.Logger)
)

// Options controls logger construction.
type Options struct {
	Debug   bool   // debug level + file sink
	LogDir  string // directory for file sinks; empty disables file output
	Console bool   // mirror to stderr; false leaves stderr silent
}

// Init builds the shared core. Safe to call once at startup; subsequent
// calls replace the core (tests rely on this).
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core

	if opts.Console {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	if opts.Debug && opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.LogDir, "webatlas.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(f),
			zapcore.DebugLevel,
		))
	}

	if len(cores) == 0 {
		root = zap.NewNop()
	} else {
		root = zap.New(zapcore.NewTee(cores...))
	}
	loggers = make(map[Category]*zap.Logger)
	return nil
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if root == nil {
		root = zap.NewNop()
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Errors from stderr syncing are ignored.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Discovery returns the discovery logger.
func Discovery() *zap.Logger { return Get(CategoryDiscovery) }

// Browser returns the browser logger.
func Browser() *zap.Logger { return Get(CategoryBrowser) }

// LLM returns the llm logger.
func LLM() *zap.Logger { return Get(CategoryLLM) }

// Analysis returns the analysis logger.
func Analysis() *zap.Logger { return Get(CategoryAnalysis) }

// Workflow returns the workflow logger.
func Workflow() *zap.Logger { return Get(CategoryWorkflow) }

// Artifacts returns the artifacts logger.
func Artifacts() *zap.Logger { return Get(CategoryArtifacts) }

// Docgen returns the docgen logger.
func Docgen() *zap.Logger { return Get(CategoryDocgen) }

// Tools returns the tool-registry logger.
func Tools() *zap.Logger { return Get(CategoryTools) }
