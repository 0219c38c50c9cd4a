package tracker

import "github.com/rs/zerolog"

// Log is a Tracker which writes each scalar to a logger
type Log struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewLog returns a Tracker logging scalars at the given level
func NewLog(logger zerolog.Logger, level zerolog.Level) *Log {
	return &Log{
		logger: logger.With().Str("component", "tracker").Logger(),
		level:  level,
	}
}

// LogScalar implements the Tracker interface
func (l *Log) LogScalar(name string, value float64, step int) error {
	l.logger.WithLevel(l.level).
		Str("scalar", name).
		Float64("value", value).
		Int("step", step).
		Send()
	return nil
}
