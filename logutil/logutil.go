// Package logutil baut den Prozess-Logger.
//
// MODUL: logutil
// ZWECK: Text-Logger mit TRACE-Level und kurzen Quellpfaden
// ABHAENGIGKEITEN: log/slog
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// LevelTrace liegt unter slog.LevelDebug (PIMS_DEBUG=2)
const LevelTrace slog.Level = -8

// NewLogger gibt einen Text-Logger fuer w zurueck
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if l, ok := attr.Value.Any().(slog.Level); ok && l == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Trace loggt auf dem TRACE-Level des Default-Loggers
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}
