// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"

	"github.com/docker/go-units"
	"github.com/pterm/pterm"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/pkg/format"
	"github.com/routellm/llmrouter/theme"
)

// CircuitState names a breaker's state for the purpose of styled output.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods for
// provider names, request counts and circuit-breaker transitions.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

// NewStyledLogger creates a new styled logger with the given theme
func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		theme:  theme,
	}
}

// NewNoop returns a StyledLogger that discards everything it's given. It's
// useful for tests and for any code path that runs before a real logger has
// been assembled.
func NewNoop() *StyledLogger {
	discard := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return NewStyledLogger(discard, theme.Default())
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithProvider logs an info message with the provider name styled.
func (sl *StyledLogger) InfoWithProvider(msg string, provider string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Provider}.Sprint(provider))
	sl.logger.Info(styledMsg, args...)
}

// WarnWithProvider logs a warn message with the provider name styled.
func (sl *StyledLogger) WarnWithProvider(msg string, provider string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Provider}.Sprint(provider))
	sl.logger.Warn(styledMsg, args...)
}

// ErrorWithProvider logs an error message with the provider name styled.
func (sl *StyledLogger) ErrorWithProvider(msg string, provider string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Provider}.Sprint(provider))
	sl.logger.Error(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	var formattedNums []string
	for _, num := range numbers {
		formattedNums = append(formattedNums, pterm.Style{*sl.theme.Numbers}.Sprint(num))
	}

	styledMsg := fmt.Sprintf(msg, toInterfaceSlice(formattedNums)...)
	sl.logger.Info(styledMsg)
}

// InfoCircuitTransition logs a breaker state change for provider, styled by
// the state it transitioned into.
func (sl *StyledLogger) InfoCircuitTransition(provider string, state CircuitState, args ...any) {
	var style pterm.Style
	var text string
	switch state {
	case CircuitOpen:
		style, text = *sl.theme.CircuitOpen, "open"
	case CircuitHalfOpen:
		style, text = *sl.theme.CircuitHalfOpen, "half-open"
	default:
		style, text = *sl.theme.CircuitClosed, "closed"
	}

	styledMsg := fmt.Sprintf("circuit for %s is now %s", pterm.Style{*sl.theme.Provider}.Sprint(provider), style.Sprint(text))
	if state == CircuitOpen {
		sl.logger.Warn(styledMsg, args...)
		return
	}
	sl.logger.Info(styledMsg, args...)
}

// InfoProviderStatus logs a periodic usage snapshot for provider, using
// go-units to render request/token counts in the same compact,
// human-readable form it normally reserves for byte counts.
func (sl *StyledLogger) InfoProviderStatus(provider string, st domain.ProviderStatus) {
	rpm := units.CustomSize("%.0f%s", float64(st.RPMUsed), 1000, []string{"", "K", "M"})
	rpmLimit := units.CustomSize("%.0f%s", float64(st.RPMLimit), 1000, []string{"", "K", "M"})
	tpm := units.CustomSize("%.0f%s", float64(st.TPMUsed), 1000, []string{"", "K", "M"})
	tpmLimit := units.CustomSize("%.0f%s", float64(st.TPMLimit), 1000, []string{"", "K", "M"})

	styledMsg := fmt.Sprintf("%s rpm=%s/%s tpm=%s/%s headroom=%s",
		pterm.Style{*sl.theme.Provider}.Sprint(provider), rpm, rpmLimit, tpm, tpmLimit, format.Percentage(st.HeadroomPct))

	if st.CircuitOpen {
		sl.Warn(styledMsg, "circuit_open", true, "in_flight", st.RequestsInFlight)
		return
	}
	sl.Info(styledMsg, "avg_latency", format.Latency(int64(st.AvgLatencyMs)), "in_flight", st.RequestsInFlight)
}

// InfoRouted logs a successful routing decision.
func (sl *StyledLogger) InfoRouted(event domain.RouteEvent) {
	sl.logger.Info("routed request",
		"provider", event.Provider,
		"model", event.Model,
		"attempt", event.AttemptNumber,
		"latency_ms", event.LatencyMs,
		"input_tokens", event.InputTokens,
		"output_tokens", event.OutputTokens,
	)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithAttrs creates a new StyledLogger with additional structured attributes
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}

	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// Helper function to convert string slice to interface slice
func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
