package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger. format "json" writes structured
// lines to stderr; anything else uses the human-friendly console writer.
func SetupLogger(level, format string) {
	setupLogger(os.Stderr, level, format)
}

func setupLogger(out io.Writer, level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	}
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
	}
}
