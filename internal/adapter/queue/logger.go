package queue

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Logger adapts zerolog to asynq.Logger.
type Logger struct {
	log zerolog.Logger
}

// NewLogger wraps log for use by asynq.
func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "asynq").Logger()}
}

func (l *Logger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *Logger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *Logger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *Logger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *Logger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
