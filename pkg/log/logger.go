package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

type Fields map[string]interface{}

// New builds the process logger. local gets a console writer; everything else
// emits JSON. An unparsable level falls back to info.
func New(env, level string) Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(out io.Writer, env, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if env == "local" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func With(logger Logger, fields Fields) Logger {
	return logger.With().Fields(map[string]interface{}(fields)).Logger()
}
