package main

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		file = short
		return file + ":" + strconv.Itoa(line)
	}
}

// setupLogger builds the request-trace logger. It stays silent unless
// LOG_LEVEL is set, since the CLI's normal output goes to stdout.
func setupLogger() zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Caller().Timestamp().Logger().
		Level(zerolog.Disabled)

	val, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return logger
	}

	lvl, err := zerolog.ParseLevel(val)
	if err != nil {
		logger = logger.Level(zerolog.ErrorLevel)
		logger.Err(err).Msgf("unknown LOG_LEVEL value: \"%s\"", val)
		return logger
	}
	return logger.Level(lvl)
}
