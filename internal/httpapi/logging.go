package httpapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "http").Logger() }

// LogLevel controls per-request exchange logging.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "1":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from CHATD_HTTP_LOG_LEVEL; unset means info.
var defaultLogLevel = func() LogLevel {
	v, ok := os.LookupEnv("CHATD_HTTP_LOG_LEVEL")
	if !ok {
		return LevelInfo
	}
	return parseLevel(v)
}()

// requestLogLevel honours ?log= and X-Log-Level overrides.
func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// exchangeLog logs the start and end of one generation request.
type exchangeLog struct {
	lvl   LogLevel
	r     *http.Request
	start time.Time
	sid   string
}

func startExchange(r *http.Request, sessionID, instruction string) exchangeLog {
	l := exchangeLog{lvl: requestLogLevel(r), r: r, start: time.Now(), sid: sessionID}
	if l.lvl >= LevelInfo {
		e := l.event(zlog.Info()).Int("instruction_len", len(instruction))
		if l.lvl >= LevelDebug {
			e = e.Str("instruction", instruction)
		}
		e.Msg("exchange start")
	}
	return l
}

func (l exchangeLog) event(e *zerolog.Event) *zerolog.Event {
	e = e.Str("path", l.r.URL.Path)
	if l.sid != "" {
		e = e.Str("session_id", l.sid)
	}
	if rid := middleware.GetReqID(l.r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

func (l exchangeLog) end(status int, reply string, err error) {
	switch {
	case err != nil && l.lvl >= LevelError:
		l.event(zlog.Error()).Int("status", status).Dur("dur", time.Since(l.start)).Err(err).Msg("exchange end")
	case err == nil && l.lvl >= LevelInfo:
		e := l.event(zlog.Info()).Int("status", status).Dur("dur", time.Since(l.start)).Int("reply_len", len(reply))
		if l.lvl >= LevelDebug {
			e = e.Str("reply", reply)
		}
		e.Msg("exchange end")
	}
}
