package notify

import (
	"context"
	"errors"
	"testing"
)

type stubSink struct {
	sent   int
	closed bool
	err    error
}

func (s *stubSink) Send(ctx context.Context, a Alert) error {
	s.sent++
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return nil
}

func TestFanout_SendsToAllSinks(t *testing.T) {
	a, b := &stubSink{}, &stubSink{}
	f := NewFanout(a, b)

	if err := f.Send(context.Background(), Alert{Title: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if a.sent != 1 || b.sent != 1 {
		t.Errorf("sent = %d, %d, want 1, 1", a.sent, b.sent)
	}
}

func TestFanout_ContinuesPastFailure(t *testing.T) {
	a := &stubSink{err: errors.New("rate limited")}
	b := &stubSink{}
	f := NewFanout(a, b)

	// One sink failing is not an error as long as another delivered.
	if err := f.Send(context.Background(), Alert{Title: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if b.sent != 1 {
		t.Errorf("second sink sent = %d, want 1", b.sent)
	}
}

func TestFanout_AllSinksFailing(t *testing.T) {
	a := &stubSink{err: errors.New("rate limited")}
	b := &stubSink{err: errors.New("forbidden")}
	f := NewFanout(a, b)

	if err := f.Send(context.Background(), Alert{Title: "t"}); err == nil {
		t.Fatal("expected error when every sink fails")
	}
}

func TestFanout_Close(t *testing.T) {
	a, b := &stubSink{}, &stubSink{}
	f := NewFanout(a, b)

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("Close should close every sink")
	}
}

func TestFanout_Empty(t *testing.T) {
	f := NewFanout()
	if err := f.Send(context.Background(), Alert{Title: "t"}); err != nil {
		t.Fatalf("Send on empty fanout: %v", err)
	}
	if f.Sinks() != 0 {
		t.Errorf("Sinks() = %d, want 0", f.Sinks())
	}
}
