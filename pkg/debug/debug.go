// Package debug provides category-scoped debug logging on top of log/slog.
//
// Categories select WHAT is logged (PLUGFLOW_DEBUG=engine,plugins), the log
// level selects HOW MUCH (PLUGFLOW_LOG_LEVEL=TRACE|DEBUG|INFO|WARN|ERROR).
// Environment variables override configuration values.
//
//	debug.Log(debug.Plugins, "dispatch", "plugin", name, "attempt", n)
//	if debug.Enabled(debug.Providers) { /* expensive formatting */ }
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// Debug categories used across the module.
const (
	Engine    = "engine"
	Providers = "providers"
	Plugins   = "plugins"
	MCP       = "mcp"
	Transport = "transport"
	Streaming = "streaming"
	Config    = "config"
	Audit     = "audit"
	All       = "all"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, full provider deltas and
// plugin payloads are logged.
const LevelTrace = slog.LevelDebug - 4

var categories atomic.Pointer[map[string]bool]

func init() {
	setCategories(parseCategories(os.Getenv("PLUGFLOW_DEBUG")))
}

// Settings configure the process logger.
type Settings struct {
	Categories string
	Level      string
	Format     string // "text" or "json"
	Output     io.Writer
}

// Init installs the default slog logger and the enabled categories. The
// PLUGFLOW_DEBUG and PLUGFLOW_LOG_LEVEL variables take precedence over s.
// The installed logger is returned for injection.
func Init(s Settings) *slog.Logger {
	cats := os.Getenv("PLUGFLOW_DEBUG")
	if cats == "" {
		cats = s.Categories
	}
	setCategories(parseCategories(cats))

	level := os.Getenv("PLUGFLOW_LOG_LEVEL")
	if level == "" {
		level = s.Level
	}
	out := s.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(s.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m[All] || m[category]
}

// Log emits a debug message tagged with category. It is a no-op when the
// category is disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message tagged with category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceEnabled reports whether TRACE output would be written for category.
func TraceEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes text to stderr unformatted, for copy-paste-ready payload dumps.
// Only emitted at TRACE for an enabled category.
func Raw(category string, text string) {
	if !TraceEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to
// INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	m := *categories.Load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Truncate shortens s to maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func setCategories(m map[string]bool) {
	categories.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
