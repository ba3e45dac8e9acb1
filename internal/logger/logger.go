package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func InitLogger() zerolog.Logger {
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return logger
}

// Nop is used by tests and by the CLI when -v is not set.
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard)
}
