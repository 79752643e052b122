package goSession

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *captureSink) next(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected %s audit event", eventType)
		}
	}
}

func buildAuditTestEngine(t *testing.T, cfg Config, sink AuditSink) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(cfg).
		WithStore(session.NewMemoryStore(nil, time.Hour)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func auditTestConfig(enabled bool) Config {
	cfg := defaultConfig()
	cfg.Audit.Enabled = enabled
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false
	return cfg
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine := buildAuditTestEngine(t, auditTestConfig(false), sink)

	bundle, err := engine.CreateSession(context.Background(), "u1", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	_, _ = engine.RefreshSession(context.Background(), bundle.RefreshToken.Value)
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditTheftEventCarriesSessionAndRequestID(t *testing.T) {
	sink := newCaptureSink(32)
	engine := buildAuditTestEngine(t, auditTestConfig(true), sink)

	bundle, err := engine.CreateSession(context.Background(), "u1", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := engine.RefreshSession(context.Background(), bundle.RefreshToken.Value); err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-42")
	if _, err := engine.RefreshSession(ctx, bundle.RefreshToken.Value); err == nil {
		t.Fatal("expected replay to fail")
	}

	ev := sink.next(t, auditEventTokenTheftDetected)
	if ev.Success {
		t.Fatal("expected theft event to be a failure")
	}
	if ev.SessionHandle != bundle.Handle || ev.UserID != "u1" {
		t.Fatalf("unexpected theft event identity: %+v", ev)
	}
	if ev.Error != string(auditErrTokenTheft) {
		t.Fatalf("expected error code %q, got %q", auditErrTokenTheft, ev.Error)
	}
	if ev.Metadata["request_id"] != "req-42" {
		t.Fatalf("expected request id metadata, got %v", ev.Metadata)
	}
}

func TestAuditKeyRotationEvent(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	cfg := auditTestConfig(true)
	sink := newCaptureSink(8)
	engine, err := New().
		WithConfig(cfg).
		WithStore(session.NewMemoryStore(clock, time.Hour)).
		WithClock(clock).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	now.Add(int64(cfg.SigningKeys.AccessKeyValidity + time.Minute))
	report, err := engine.RotateSigningKeys(context.Background())
	if err != nil {
		t.Fatalf("RotateSigningKeys failed: %v", err)
	}

	ev := sink.next(t, auditEventSigningKeyRotated)
	if ev.KeyID != report.Access.KeyID || ev.Metadata["set"] != "access" {
		t.Fatalf("unexpected rotation event: %+v", ev)
	}
	if ev.Metadata["previous_key_id"] != report.Access.PreviousKeyID {
		t.Fatalf("expected previous key id %q, got %q", report.Access.PreviousKeyID, ev.Metadata["previous_key_id"])
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := newCaptureSink(32)
	engine := buildAuditTestEngine(t, auditTestConfig(true), sink)

	bundle, err := engine.CreateSession(context.Background(), "u1", nil, nil, true)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	next, err := engine.RefreshSession(context.Background(), bundle.RefreshToken.Value)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	_, _ = engine.RefreshSession(context.Background(), bundle.RefreshToken.Value)

	secretNeedles := []string{
		bundle.RefreshToken.Value,
		bundle.AccessToken.Value,
		bundle.AntiCSRFToken,
		next.RefreshToken.Value,
	}

	events := make([]AuditEvent, 0, 8)
	timeout := time.After(2 * time.Second)
collectLoop:
	for len(events) < 4 {
		select {
		case ev := <-sink.events:
			events = append(events, ev)
		case <-timeout:
			break collectLoop
		}
	}

	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		for _, needle := range secretNeedles {
			if needle == "" {
				continue
			}
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

func TestAuditRevokeSkipsUnknownHandles(t *testing.T) {
	sink := newCaptureSink(32)
	engine := buildAuditTestEngine(t, auditTestConfig(true), sink)

	bundle, err := engine.CreateSession(context.Background(), "u1", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	sink.next(t, auditEventSessionCreated)

	n, err := engine.RevokeSessions(context.Background(), "no-such-handle", bundle.Handle, bundle.Handle)
	if err != nil {
		t.Fatalf("RevokeSessions failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked session, got %d", n)
	}

	ev := sink.next(t, auditEventSessionRevoked)
	if ev.SessionHandle != bundle.Handle {
		t.Fatalf("revoke event for %q, expected %q", ev.SessionHandle, bundle.Handle)
	}

	// only the live handle produced an event
	if _, err := engine.RevokeSessions(context.Background(), "no-such-handle"); err != nil {
		t.Fatalf("RevokeSessions failed: %v", err)
	}
	engine.Close()
	close(sink.events)
	for ev := range sink.events {
		if ev.EventType == auditEventSessionRevoked {
			t.Fatalf("unexpected revoke event: %+v", ev)
		}
	}
}
