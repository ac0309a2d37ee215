package main

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/dicelink/internal/diag"
	"github.com/srg/dicelink/pkg/config"
)

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose, which takes precedence over the
// config file. Without any of them the logger stays silent.
// When --diagnostics is set a diag hook records every entry regardless of level.
func configureLogger(cmd *cobra.Command, verboseFlagName string, cfg *config.Config) (*logrus.Logger, *diag.Hook, error) {
	logLevel := logrus.PanicLevel
	if cfg != nil && cmd.Flags().Changed("config") {
		logLevel = cfg.Level()
	}

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		logLevel = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(cmd.ErrOrStderr())

	withDiagnostics, _ := cmd.Flags().GetBool("diagnostics")
	if !withDiagnostics {
		return logger, nil, nil
	}

	size := uint32(256)
	if cfg != nil {
		size = cfg.DiagnosticsBuffer
	}
	// Hooks only see entries the logger lets through, so the logger runs at
	// debug and console output moves to a hook capped at the requested level.
	if logLevel < logrus.DebugLevel {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetOutput(io.Discard)
		logger.AddHook(newConsoleHook(cmd.ErrOrStderr(), logger.Formatter, logLevel))
	}
	hook, err := diag.Attach(logger, size)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up diagnostics: %w", err)
	}
	return logger, hook, nil
}

// consoleHook writes entries at or above a severity to out.
type consoleHook struct {
	out       io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func newConsoleHook(out io.Writer, formatter logrus.Formatter, max logrus.Level) *consoleHook {
	h := &consoleHook{out: out, formatter: formatter}
	for _, l := range logrus.AllLevels {
		if l <= max {
			h.levels = append(h.levels, l)
		}
	}
	return h
}

func (h *consoleHook) Levels() []logrus.Level {
	return h.levels
}

func (h *consoleHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}
