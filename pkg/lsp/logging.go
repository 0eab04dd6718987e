package lsp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/walteh/gotodef/pkg/debug"
)

// LogMethod carries log lines to the client.
const LogMethod = "window/logMessage"

var myLoggerId = xid.New().String()

// LSPWriter implements io.Writer to redirect zerolog JSON lines to the
// client as window/logMessage notifications. Lines written before a server
// is attached are dropped.
type LSPWriter struct {
	mu     sync.Mutex
	ctx    context.Context
	server *jrpc2.Server
}

func NewLSPWriter(ctx context.Context) *LSPWriter {
	return &LSPWriter{ctx: ctx}
}

func (w *LSPWriter) Attach(srv *jrpc2.Server) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.server = srv
}

// Logger returns a logger that writes through w and marks its lines as ours.
// Lines from other loggers written to w are reported as Dependency.
func (w *LSPWriter) Logger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Str("id", myLoggerId).Logger().
		Hook(debug.TimeHook{}).
		Hook(debug.CallerHook{})
}

func (w *LSPWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.server == nil {
		return len(p), nil
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal(p, &logEntry); err != nil {
		return len(p), nil // Skip malformed entries
	}

	level := ParseMessageTypeFromZerolog(extractField(logEntry, "level", ""))
	msg := extractField(logEntry, "message", "")
	id := extractField(logEntry, "id", "")
	time := extractField(logEntry, "time", "")
	source := extractField(logEntry, "caller", "")

	if id != myLoggerId {
		level = Dependency
	}

	notification := LogMessageParams{
		Type:    level,
		Message: msg,
		Raw:     string(p),
		Extra:   logEntry,
		Time:    time,
		Source:  source,
	}

	// a client that went away must not break logging
	_ = w.server.Notify(w.ctx, LogMethod, notification)
	return len(p), nil
}

func extractField(entry map[string]interface{}, key, defaultValue string) string {
	if v, ok := entry[key].(string); ok {
		delete(entry, key)
		return v
	}
	return defaultValue
}
