package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel is the minimum severity a Logger writes
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

var logrusLevels = map[LogLevel]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLogLevel parses a level name such as "debug" or "WARN". Empty means info.
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "":
		return InfoLevel, nil
	case "WARNING":
		return WarnLevel, nil
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level: %s", s)
}

// Logger writes JSON lines through logrus. Fields added with WithField and
// WithFields are nested under "fields" in each entry.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger writing to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	lvl, ok := logrusLevels[level]
	if !ok {
		lvl = logrus.InfoLevel
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		DataKey:         "fields",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})

	return &Logger{entry: logrus.NewEntry(base)}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError records err under "error". A nil error returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.entry.Debug(message) }
func (l *Logger) Info(message string)  { l.entry.Info(message) }
func (l *Logger) Warn(message string)  { l.entry.Warn(message) }
func (l *Logger) Error(message string) { l.entry.Error(message) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

type contextKey int

const (
	requestIDKey contextKey = iota
	userIDKey
	loggerKey
)

// WithRequestID stores the request ID in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUserID stores the caller identity in ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the caller identity stored in ctx, or ""
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithLogger stores a request-scoped logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the logger stored in ctx, or a new info-level stdout logger
func GetLogger(ctx context.Context) *Logger {
	if logger, _ := ctx.Value(loggerKey).(*Logger); logger != nil {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the context logger tagged with request_id and user_id
func FromContext(ctx context.Context) *Logger {
	return withContextFields(ctx, GetLogger(ctx))
}

// FromContextOr is FromContext with a fallback for contexts without a logger
func FromContextOr(ctx context.Context, fallback *Logger) *Logger {
	logger, _ := ctx.Value(loggerKey).(*Logger)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = NewLogger(InfoLevel, os.Stdout)
	}
	return withContextFields(ctx, logger)
}

func withContextFields(ctx context.Context, logger *Logger) *Logger {
	fields := make(map[string]interface{}, 2)
	if id := GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := GetUserID(ctx); id != "" {
		fields["user_id"] = id
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}
