package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger with the construction policy the proxy needs:
// stdout is reserved for the host-facing stdio JSON-RPC channel, so output
// defaults to stderr and a file is opened only when one is requested.
type Logger struct {
	logger *logrus.Logger
	file   *os.File
}

// CreateLogger creates a new logger instance. When logFile is empty, output
// goes to stderr only — never to stdout, and never to a file nobody asked
// for. When logFile is set, output goes to that file only, unless
// enableStdout is true, in which case it is also echoed to stderr. No
// combination of arguments writes to stdout.
func CreateLogger(logFile string, level string, format string, enableStdout bool) (Logger, error) {
	logrusLogger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return Logger{}, fmt.Errorf("invalid log level: %w", err)
	}
	logrusLogger.SetLevel(logLevel)

	prettyCaller := func(f *runtime.Frame) (string, string) {
		filename := filepath.Base(f.File)
		return "", fmt.Sprintf("%s:%d", filename, f.Line)
	}

	switch strings.ToLower(format) {
	case "json":
		logrusLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	case "text", "":
		logrusLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	default:
		return Logger{}, fmt.Errorf("unsupported log format: %s", format)
	}

	logrusLogger.SetReportCaller(true)
	logrusLogger.SetOutput(os.Stderr)

	var file *os.File
	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return Logger{}, fmt.Errorf("failed to create log directory: %w", err)
		}

		//nolint:gosec // G304: logFile comes from configuration/environment, not user input
		file, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return Logger{}, fmt.Errorf("failed to open log file: %w", err)
		}

		if enableStdout {
			logrusLogger.SetOutput(io.MultiWriter(file, os.Stderr))
		} else {
			logrusLogger.SetOutput(file)
		}
	}

	return Logger{
		logger: logrusLogger,
		file:   file,
	}, nil
}

// CreateDefaultLogger creates a stderr-only logger at info level, the
// default for any command that hasn't been told otherwise.
func CreateDefaultLogger() Logger {
	l, err := CreateLogger("", "info", "text", false)
	if err != nil {
		// ParseLevel("info") and the text formatter never fail; this path
		// exists only to satisfy the compiler.
		l = Logger{logger: logrus.New()}
		l.logger.SetOutput(os.Stderr)
	}
	return l
}

// CreateDebugLogger creates a text logger at debug level, writing to
// logFile (or stderr when logFile is empty).
func CreateDebugLogger(logFile string) Logger {
	l, err := CreateLogger(logFile, "debug", "text", false)
	if err != nil {
		l = CreateDefaultLogger()
	}
	return l
}

func (l Logger) Infof(format string, v ...any) { l.logger.Infof(format, v...) }
func (l Logger) Errorf(format string, v ...any) { l.logger.Errorf(format, v...) }
func (l Logger) Info(args ...interface{})       { l.logger.Info(args...) }
func (l Logger) Error(args ...interface{})      { l.logger.Error(args...) }
func (l Logger) Debug(args ...interface{})      { l.logger.Debug(args...) }
func (l Logger) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l Logger) Warn(args ...interface{})                  { l.logger.Warn(args...) }
func (l Logger) Warnf(format string, args ...interface{})  { l.logger.Warnf(format, args...) }
func (l Logger) Fatal(args ...interface{})                 { l.logger.Fatal(args...) }
func (l Logger) Fatalf(format string, args ...interface{}) { l.logger.Fatalf(format, args...) }

func (l Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

func (l Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.logger.WithFields(fields)
}

func (l Logger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// Close closes any open log file.
func (l Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
