// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package logger adapts a plain callback into a *slog.Logger for use with tokencache.WithLogger.
Callers that already use log/slog should pass their own *slog.Logger instead.
*/
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// CallbackFunc defines the signature for callback functions
// we can only have one string to support azure sdk
type CallbackFunc func(level, message string)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

// New returns a *slog.Logger that calls cb for every entry at minLevel or above. The message
// passed to cb is the entry's message followed by its attributes as key=value pairs.
func New(cb CallbackFunc, minLevel Level) *slog.Logger {
	return slog.New(&callbackHandler{cb: cb, min: toSlog(minLevel)})
}

func toSlog(l Level) slog.Level {
	switch l {
	case Err:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	case Debug:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func fromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return Err
	case l >= slog.LevelWarn:
		return Warn
	case l >= slog.LevelInfo:
		return Info
	}
	return Debug
}

// callbackHandler is a slog.Handler that formats entries for a CallbackFunc.
type callbackHandler struct {
	cb     CallbackFunc
	min    slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *callbackHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.cb != nil && l >= h.min
}

func (h *callbackHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Key = h.prefix() + a.Key
		writeAttr(&sb, a)
		return true
	})
	h.cb(string(fromSlog(r.Level)), sb.String())
	return nil
}

func writeAttr(sb *strings.Builder, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(sb, " %s=%v", a.Key, a.Value)
}

func (h *callbackHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// WithAttrs qualifies attrs with the groups open now. Groups opened later don't apply to them.
func (h *callbackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix() + a.Key
		n.attrs = append(n.attrs, a)
	}
	return &n
}

func (h *callbackHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	n.groups = append(append([]string{}, h.groups...), name)
	return &n
}
