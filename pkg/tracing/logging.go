// Package tracing sets up the structured logger the wrapper stack's
// tracing layer emits span boundaries through, and reports
// fatal/corruption errors to Sentry so they surface outside the process
// logs.
package tracing

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogseq "github.com/sokkalf/slog-seq"
)

// multiHandler fans a record out to every wrapped handler, continuing past
// a handler error so one sink's outage doesn't silence the others.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Options configures NewLogger. SeqURL is optional; when empty, only the
// console handler is installed.
type Options struct {
	SeqURL string
	Level  slog.Level
}

// NewLogger builds the engine-wide logger and returns a cleanup function
// that must run before process exit (it flushes the seq handler, if any).
func NewLogger(opts Options) (*slog.Logger, func()) {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: true,
	})

	if opts.SeqURL == "" {
		return slog.New(console), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		opts.SeqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{Level: opts.Level}),
	)
	if seqHandler == nil {
		return slog.New(console), func() {}
	}

	logger := slog.New(&multiHandler{handlers: []slog.Handler{console, seqHandler}})
	return logger, func() { seqHandler.Close() }
}

// InitSentry wires Sentry error reporting for ReportFatal. A blank dsn
// disables reporting and ReportFatal becomes a no-op.
func InitSentry(dsn string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{Dsn: dsn})
}

// ReportFatal sends an IoFatal/Corruption-class error to Sentry, tagged
// with the operation it occurred in. The tracing layer calls this once per
// span that ends in an IoFatal or Corruption error.
func ReportFatal(op string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", op)
		sentry.CaptureException(err)
	})
}
