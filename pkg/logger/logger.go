package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

// Init configures the global zerolog logger. Safe to call once at startup.
func Init(conf Config) {
	if conf.PrettyFormat {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Logger.Level(level)
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
