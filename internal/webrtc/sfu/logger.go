package sfu

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// LoggerFactory routes pion's internal logging into zerolog, one sub logger per
// pion scope (ice, dtls, srtp...).
type LoggerFactory struct {
	Logger zerolog.Logger
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return scopedLogger{f.Logger.With().Str("scope", scope).Logger()}
}

type scopedLogger struct {
	logger zerolog.Logger
}

func (l scopedLogger) Trace(msg string) { l.logger.Trace().Msg(msg) }
func (l scopedLogger) Tracef(format string, args ...any) {
	l.logger.Trace().Msgf(format, args...)
}
func (l scopedLogger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l scopedLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}
func (l scopedLogger) Info(msg string) { l.logger.Info().Msg(msg) }
func (l scopedLogger) Infof(format string, args ...any) {
	l.logger.Info().Msgf(format, args...)
}
func (l scopedLogger) Warn(msg string) { l.logger.Warn().Msg(msg) }
func (l scopedLogger) Warnf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}
func (l scopedLogger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l scopedLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}
