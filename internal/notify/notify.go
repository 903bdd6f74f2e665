// Package notify delivers fleet alerts to chat sinks. Outbound only: the
// monitor speaks, nobody speaks back.
package notify

import (
	"context"
	"log"
)

// Alert severities. Sinks map these to their own color schemes.
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// Alert is one outbound notification.
type Alert struct {
	Title    string
	Body     string
	Severity string
	Fields   map[string]string
}

// Notifier delivers alerts to one sink.
type Notifier interface {
	Send(ctx context.Context, a Alert) error
	Close() error
}

// Fanout delivers each alert to every configured sink, logging and
// continuing past individual failures.
type Fanout struct {
	sinks []Notifier
}

// NewFanout creates a Fanout over the given sinks.
func NewFanout(sinks ...Notifier) *Fanout {
	return &Fanout{sinks: sinks}
}

// Sinks reports how many sinks are configured.
func (f *Fanout) Sinks() int { return len(f.sinks) }

// Send delivers the alert to all sinks. Individual failures are logged; Send
// itself only fails if every sink fails.
func (f *Fanout) Send(ctx context.Context, a Alert) error {
	var lastErr error
	failed := 0
	for _, s := range f.sinks {
		if err := s.Send(ctx, a); err != nil {
			log.Printf("notify: send %q: %v", a.Title, err)
			lastErr = err
			failed++
		}
	}
	if failed > 0 && failed == len(f.sinks) {
		return lastErr
	}
	return nil
}

// Close closes all sinks, returning the first error.
func (f *Fanout) Close() error {
	var firstErr error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
