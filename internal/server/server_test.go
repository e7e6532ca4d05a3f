package server

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/boww-net/boww-server/internal/logging"
	"github.com/boww-net/boww-server/internal/protocol"
	"github.com/boww-net/boww-server/internal/session"
)

func writeConfig(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "clients.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// recordingTransport captures every JSON message a test session would have
// sent back over the wire, without needing a real websocket connection.
type recordingTransport struct {
	mu  sync.Mutex
	out []any
}

func (r *recordingTransport) send(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, v)
	return nil
}

func (r *recordingTransport) messages() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.out))
	copy(out, r.out)
	return out
}

func newTestServer(t *testing.T, yaml string) *Server {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, yaml)
	srv, err := New(Config{ConfigPath: path, ModelPath: filepath.Join(dir, "missing.onnx")}, logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

// TestOnboardingAssignsIDToWaitingTempSession covers scenario 6: a
// provisional temp-id session is waiting, the config file pairs its temp id
// with a GUID, and the callback must deliver exactly one assign_id.
func TestOnboardingAssignsIDToWaitingTempSession(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients:
  - guid: g-1
    group: kitchen
`)

	rec := &recordingTransport{}
	client := session.New(session.Transport{SendJSON: rec.send})
	client.AssignTempID("temp-AAAA0000")
	srv.tempIDMu.Lock()
	srv.tempIDs["temp-AAAA0000"] = client
	srv.tempIDMu.Unlock()

	srv.onOnboarded("temp-AAAA0000", "g-1", "kitchen")

	msgs := rec.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message sent to the waiting session, got %d", len(msgs))
	}
	assignID, ok := msgs[0].(protocol.AssignID)
	if !ok {
		t.Fatalf("expected an AssignID message, got %#v", msgs[0])
	}
	if assignID.ID != "g-1" {
		t.Fatalf("expected assign_id for g-1, got %q", assignID.ID)
	}
}

func TestOnboardingIgnoresUnknownTempID(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients: []
`)
	// No session registered under this temp id; must not panic or error.
	srv.onOnboarded("temp-DOESNOTEXIST", "g-1", "kitchen")
}

func TestGroupConfigChangeCreatesControllerOnce(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients: []
`)
	if len(srv.groups) != 1 {
		t.Fatalf("expected one group controller created from initial load, got %d", len(srv.groups))
	}
	first := srv.groups["kitchen"]

	srv.onGroupConfigChanged(srv.watcher.View().Groups()[0])
	if srv.groups["kitchen"] != first {
		t.Fatal("expected the same controller instance to be reused on a repeat callback")
	}
}

func TestHandleTextHelloAuthenticatesKnownGUID(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients:
  - guid: g-1
    group: kitchen
`)
	client := session.New(session.Transport{})
	srv.handleText(client, []byte(`{"type":"hello","guid":"g-1"}`))

	if !client.IsAuthenticated() {
		t.Fatal("expected client to be authenticated after hello with a known guid")
	}
	if client.Group() != "kitchen" {
		t.Fatalf("expected client to join kitchen, got %q", client.Group())
	}
}

func TestHandleTextHelloIgnoresUnknownGUID(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients: []
`)
	client := session.New(session.Transport{})
	srv.handleText(client, []byte(`{"type":"hello","guid":"unknown"}`))

	if client.IsAuthenticated() {
		t.Fatal("expected client to remain unauthenticated for an unknown guid")
	}
}

func TestHandleTextConfidenceSendsAckBeforeArbitration(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients:
  - guid: g-1
    group: kitchen
`)
	rec := &recordingTransport{}
	client := session.New(session.Transport{SendJSON: rec.send})
	srv.handleText(client, []byte(`{"type":"hello","guid":"g-1"}`))
	srv.handleText(client, []byte(`{"type":"confidence","value":0.9}`))

	msgs := rec.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one ack message, got %d", len(msgs))
	}
	if _, ok := msgs[0].(protocol.ConfRec); !ok {
		t.Fatalf("expected a conf_rec ack, got %#v", msgs[0])
	}

	ctrl := srv.controllerFor("kitchen")
	if ctrl.State().String() != "ARBITRATING" {
		t.Fatalf("expected group to enter ARBITRATING after a confidence score, got %s", ctrl.State())
	}
}

func TestGenerateTempIDFormat(t *testing.T) {
	srv := newTestServer(t, `
groups:
  - name: kitchen
    output: file
clients: []
`)
	id := srv.generateTempID()
	if len(id) != len("temp-")+8 {
		t.Fatalf("expected an 8-hex-digit suffix, got %q", id)
	}
	if id[:5] != "temp-" {
		t.Fatalf("expected temp- prefix, got %q", id)
	}
}
