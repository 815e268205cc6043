package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/viewscreen/viewscreen/internal/config"
	"github.com/viewscreen/viewscreen/internal/logging"
)

// logConfig holds resolved logging configuration for panel-hosting commands.
type logConfig struct {
	level      slog.Level
	logFile    io.WriteCloser // nil if no file logging
	bufferSize int
}

// resolveLogConfig resolves logging configuration with flags taking
// precedence over config values, which in turn beat the built-in defaults.
// The caller must Close() the returned logConfig.logFile when non-nil.
func resolveLogConfig(flagPath, flagLevel string, flagBufferSize int, cfg *config.Config) (logConfig, error) {
	schema := config.DefaultSchema()
	var lc logConfig

	levelStr := flagLevel
	if levelStr == "" || levelStr == "info" {
		levelStr = effectiveLevel(schema, cfg)
	}
	level, err := parseLevel(levelStr)
	if err != nil {
		return lc, err
	}
	lc.level = level

	lc.bufferSize = flagBufferSize
	if lc.bufferSize <= 0 && cfg != nil {
		lc.bufferSize = cfg.GetInt("log.buffer-size")
	}
	if lc.bufferSize <= 0 {
		lc.bufferSize = 1000
	}

	logPath := flagPath
	if logPath == "" && cfg != nil {
		logPath = schema.Resolve(cfg, "log.file")
	}
	if logPath == "" {
		return lc, nil
	}

	// An explicit zero for log.max-files is valid: truncate on rotate, keep
	// no backups. Unset falls back to the schema defaults.
	maxSizeMB, maxFiles := 10, 5
	if cfg != nil {
		if v, ok := cfg.GetGlobalOption("log.max-size-mb"); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				maxSizeMB = n
			}
		}
		if v, ok := cfg.GetGlobalOption("log.max-files"); ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				maxFiles = n
			}
		}
	}

	w, err := logging.NewRotatingFileWriter(logPath, maxSizeMB, maxFiles)
	if err != nil {
		return lc, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	lc.logFile = w
	return lc, nil
}

// effectiveLevel resolves the log level from the config and environment for
// a flag left at its default. The debug and verbose options lower the
// default to debug, but never override a level set explicitly in the config
// file or the environment.
func effectiveLevel(schema *config.ConfigSchema, cfg *config.Config) string {
	explicit := false
	if cfg != nil {
		_, explicit = cfg.GetGlobalOption("log.level")
	}
	if opt := schema.Lookup("", "log.level"); opt != nil && opt.EnvVar != "" {
		if _, ok := os.LookupEnv(opt.EnvVar); ok {
			explicit = true
		}
	}
	if !explicit && cfg != nil && (cfg.GetBool("debug") || cfg.GetBool("verbose")) {
		return "debug"
	}
	if cfg == nil {
		return ""
	}
	return schema.Resolve(cfg, "log.level")
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %s", s)
}

// handler builds the slog.Handler described by the resolved configuration:
// a JSON handler on the log file when one is configured, otherwise a text
// handler on stderr.
func (lc logConfig) handler(stderr io.Writer) slog.Handler {
	if lc.logFile != nil {
		return slog.NewJSONHandler(lc.logFile, &slog.HandlerOptions{Level: lc.level})
	}
	return slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lc.level})
}

// logger builds a plain logger from the resolved configuration.
func (lc logConfig) logger(stderr io.Writer) *slog.Logger {
	return slog.New(lc.handler(stderr))
}

// bufferedLogger builds a logger that captures records in a bounded buffer
// for the repl's logs view. Records are forwarded to the log file when one
// is configured; without a file they are captured only, which keeps the
// interactive prompt free of interleaved log output.
func (lc logConfig) bufferedLogger() (*slog.Logger, *logging.Buffer) {
	var next slog.Handler
	if lc.logFile != nil {
		next = slog.NewJSONHandler(lc.logFile, &slog.HandlerOptions{Level: lc.level})
	}
	buf := logging.NewBuffer(next, lc.bufferSize)
	return slog.New(buf), buf
}
