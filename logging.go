package accounts

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologAdapter bridges a zerolog.Logger into the package Logger
// interface. Services that already run zerolog pass their logger through
// WithLogger; everything else falls back to defLogger.
type ZerologAdapter struct {
	log zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog.Logger.
func NewZerologAdapter(log zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{log: log}
}

// NewDefaultZerolog builds a zerolog-backed Logger writing to w, tagged
// with the accounts component. Passing nil writes to stderr.
func NewDefaultZerolog(w io.Writer) *ZerologAdapter {
	if w == nil {
		w = os.Stderr
	}
	log := zerolog.New(w).With().
		Timestamp().
		Str("component", "accounts").
		Logger()
	return &ZerologAdapter{log: log}
}

func (z *ZerologAdapter) Debug(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z *ZerologAdapter) Info(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z *ZerologAdapter) Warn(format string, args ...any) {
	z.log.Warn().Msgf(format, args...)
}

func (z *ZerologAdapter) Error(format string, args ...any) {
	z.log.Error().Msgf(format, args...)
}
