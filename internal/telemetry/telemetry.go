// Package telemetry reports action runs to Sentry.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// FlushTimeout bounds the wait for pending events on shutdown.
const FlushTimeout = 5 * time.Second

// defaultDSN is the project the action reports to. Overridable (or
// disabled with an empty value) via the SENTRY_DSN environment variable.
const defaultDSN = ""

// Init configures the Sentry client. A missing DSN disables reporting
// without error so forks and local runs stay quiet.
func Init(release string) error {
	dsn := defaultDSN
	if v, ok := os.LookupEnv("SENTRY_DSN"); ok {
		dsn = v
	}
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Environment:      "ci",
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return fmt.Errorf("initializing sentry: %w", err)
	}
	return nil
}

// Transaction wraps one action invocation.
type Transaction struct {
	span *sentry.Span
}

// StartTransaction begins the per-invocation trace.
func StartTransaction(ctx context.Context, name string) *Transaction {
	span := sentry.StartTransaction(ctx, name, sentry.WithOpName("ci.action"))
	return &Transaction{span: span}
}

// Context returns a context carrying the transaction, for child spans.
func (t *Transaction) Context() context.Context {
	return t.span.Context()
}

// SetError marks the transaction as failed.
func (t *Transaction) SetError() {
	t.span.Status = sentry.SpanStatusInternalError
}

// SetOK marks the transaction as successful.
func (t *Transaction) SetOK() {
	t.span.Status = sentry.SpanStatusOK
}

// Finish ends the transaction.
func (t *Transaction) Finish() {
	t.span.Finish()
}

// CaptureError records err against the current scope.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Close flushes pending events with a bounded wait.
func Close() {
	sentry.Flush(FlushTimeout)
}
