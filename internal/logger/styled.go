// internal/logger/styled.go
package logger

import (
	"log/slog"

	"github.com/thushan/pconn/theme"
)

// LogContext carries the two audiences a pool log line can serve: a short
// message for the terminal (UserArgs) and a richer set of fields that only
// land in the file/JSON sink (DetailedArgs).
type LogContext struct {
	UserArgs     []any
	DetailedArgs []any
}

// StyledLogger wraps slog.Logger with theme-aware formatting for the
// handful of message shapes the transport layer logs repeatedly: an
// endpoint key, a connection count, a pool size. Two implementations exist,
// PrettyStyledLogger (pterm colouring) and PlainStyledLogger (no styling).
// NewStyledLogger picks Pretty when Config.PrettyLogs is set and Plain
// otherwise.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoWithNumbers(msg string, numbers ...int64)

	InfoWithEndpoint(msg string, endpoint string, args ...any)
	WarnWithEndpoint(msg string, endpoint string, args ...any)
	ErrorWithEndpoint(msg string, endpoint string, args ...any)

	InfoWithContext(msg string, endpoint string, ctx LogContext)
	WarnWithContext(msg string, endpoint string, ctx LogContext)
	ErrorWithContext(msg string, endpoint string, ctx LogContext)

	InfoConfigChange(oldValue, newValue string)

	GetUnderlying() *slog.Logger
	WithRequestID(requestID string) StyledLogger
	WithAttrs(attrs ...slog.Attr) StyledLogger
	With(args ...any) StyledLogger
}

// NewStyledLogger picks Pretty or Plain based on whether the underlying
// config asked for terminal styling.
func NewStyledLogger(logger *slog.Logger, appTheme *theme.Theme, pretty bool) StyledLogger {
	if pretty {
		return NewPrettyStyledLogger(logger, appTheme)
	}
	return NewPlainStyledLogger(logger)
}

// NewWithTheme creates both a regular logger and a styled logger from Config.
func NewWithTheme(cfg *Config) (*slog.Logger, StyledLogger, func(), error) {
	base, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styled := NewStyledLogger(base, appTheme, cfg.PrettyLogs)

	return base, styled, cleanup, nil
}

// toInterfaceSlice lets fmt.Sprintf consume a []string as variadic args.
func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}
