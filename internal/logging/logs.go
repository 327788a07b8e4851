// Package logging owns process logging setup and the printf-style helpers
// used across lpio.
package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var active atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.Nop()
	active.Store(&l)
}

func setLogger(l zerolog.Logger) {
	active.Store(&l)
}

// Logger returns the active structured logger.
func Logger() zerolog.Logger {
	return *active.Load()
}

func Tracef(format string, args ...any) {
	log := Logger()
	log.Trace().Msgf(format, args...)
}

func Debugf(format string, args ...any) {
	log := Logger()
	log.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	log := Logger()
	log.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	log := Logger()
	log.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	log := Logger()
	log.Error().Msgf(format, args...)
}

// Logf writes at no level; it is emitted whenever the logger is enabled.
func Logf(format string, args ...any) {
	log := Logger()
	log.Log().Msgf(format, args...)
}
