// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging builds the shared slog.Logger used by both binaries,
// optionally fanning records out to a TCP log collector the way the
// original server.py forwarded to a logging.handlers.SocketHandler.
package logging

import (
	"context"
	"log/slog"
	"net"
	"os"
	"time"
)

// New returns a JSON slog.Logger attributed with component. If addr is
// non-empty, records are also written newline-delimited to that TCP
// address; a failed or dropped connection never keeps a record from the
// mandatory local handler, though a record that finds no open connection
// first waits up to 2s for a fresh dial.
func New(component string, addr string) *slog.Logger {
	local := slog.NewJSONHandler(os.Stderr, nil)
	var handler slog.Handler = local
	if addr != "" {
		handler = &fanoutHandler{local: local, remote: newSocketHandler(addr)}
	}
	return slog.New(handler).With("component", component)
}

// socketHandler writes newline-delimited JSON records to a TCP collector,
// dialing lazily and reconnecting on the next record after a write failure.
type socketHandler struct {
	addr string
	conn net.Conn
}

func newSocketHandler(addr string) *socketHandler {
	return &socketHandler{addr: addr}
}

func (h *socketHandler) write(data []byte) {
	if h.conn == nil {
		conn, err := net.DialTimeout("tcp", h.addr, 2*time.Second)
		if err != nil {
			return
		}
		h.conn = conn
	}
	if _, err := h.conn.Write(data); err != nil {
		h.conn.Close()
		h.conn = nil
	}
}

// fanoutHandler writes every record to the local handler and best-effort
// mirrors it to the remote socket handler.
type fanoutHandler struct {
	local  slog.Handler
	remote *socketHandler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.local.Enabled(ctx, level)
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	jh := slog.NewJSONHandler(&sliceWriter{buf: &buf}, nil)
	_ = jh.Handle(ctx, r)
	f.remote.write(buf)
	return f.local.Handle(ctx, r)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{local: f.local.WithAttrs(attrs), remote: f.remote}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{local: f.local.WithGroup(name), remote: f.remote}
}

// sliceWriter adapts a *[]byte to io.Writer for the scratch JSON encode
// used to mirror one record to the remote socket.
type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
