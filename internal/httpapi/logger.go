package httpapi

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const serviceName = "fibermap-core"

func NewLogger(level string) zerolog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("service", serviceName).Logger()
}

// requestLogger tags log with the request id and, on workspace routes, the
// workspace id. Call it after routing so the {ws} parameter is populated.
func requestLogger(log zerolog.Logger, r *http.Request) zerolog.Logger {
	c := log.With().Str("request_id", middleware.GetReqID(r.Context()))
	if ws := chi.URLParam(r, "ws"); ws != "" {
		c = c.Str("workspace", ws)
	}
	return c.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
