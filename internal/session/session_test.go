package session

import (
	"testing"
	"time"

	"github.com/boww-net/boww-server/internal/protocol"
)

func TestIdentityTransitions(t *testing.T) {
	c := New(Transport{})

	c.AssignTempID("temp-123")
	if c.IsAuthenticated() {
		t.Fatal("expected unauthenticated after AssignTempID")
	}
	if got := c.ID(); got != "temp-123" {
		t.Fatalf("ID() = %q, want temp-123", got)
	}

	c.SetGUID("guid-abc", "kitchen")
	if !c.IsAuthenticated() {
		t.Fatal("expected authenticated after SetGUID")
	}
	if got := c.ID(); got != "guid-abc" {
		t.Fatalf("ID() = %q, want guid-abc", got)
	}
	if got := c.Group(); got != "kitchen" {
		t.Fatalf("Group() = %q, want kitchen", got)
	}

	// Re-assigning a temp ID clears authentication, as on reconnect.
	c.AssignTempID("temp-456")
	if c.IsAuthenticated() {
		t.Fatal("expected unauthenticated after re-assigning temp ID")
	}
}

func TestSendJSONUsesTransport(t *testing.T) {
	var got any
	c := New(Transport{SendJSON: func(v any) error {
		got = v
		return nil
	}})

	if err := c.SendStop(); err != nil {
		t.Fatalf("SendStop: %v", err)
	}
	msg, ok := got.(protocol.Stop)
	if !ok || msg.Type != protocol.TypeStop {
		t.Fatalf("expected stop message, got %#v", got)
	}
}

func TestSendJSONWithNilTransportIsNoop(t *testing.T) {
	c := New(Transport{})
	if err := c.SendStop(); err != nil {
		t.Fatalf("expected nil transport send to be a no-op, got %v", err)
	}
}

func TestTimeSinceLastVoiceIncreases(t *testing.T) {
	c := New(Transport{})
	c.InitVADState(nil)
	first := c.TimeSinceLastVoiceMs()
	time.Sleep(5 * time.Millisecond)
	elapsed := c.TimeSinceLastVoiceMs()
	if elapsed <= first {
		t.Fatal("expected elapsed time since last voice to increase")
	}
	c.UpdateLastVoice()
	if c.TimeSinceLastVoiceMs() >= elapsed {
		t.Fatal("expected UpdateLastVoice to reset the silence clock")
	}
}

func TestClosedFlag(t *testing.T) {
	c := New(Transport{})
	if c.IsClosed() {
		t.Fatal("expected not closed initially")
	}
	c.MarkClosed()
	if !c.IsClosed() {
		t.Fatal("expected closed after MarkClosed")
	}
}
