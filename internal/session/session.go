// Package session implements the per-connection Client Session: identity
// phase tracking, last-voice bookkeeping for the VAD silence timeout, and a
// small transport handle so a Client never imports the transport or server
// package directly.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/boww-net/boww-server/internal/protocol"
	"github.com/boww-net/boww-server/internal/vad"
)

// Transport is the "service handle" a Client uses to talk back to its
// connection without holding a pointer to the server or the transport
// library. Avoids the back-pointer cycle the original implementation used
// (a raw server pointer stored on every session).
type Transport struct {
	// SendJSON marshals and sends v as a text message. Implementations
	// should be safe to call concurrently.
	SendJSON func(v any) error
}

// Client tracks one connection's identity and VAD bookkeeping. All fields
// except the atomic closed flag are guarded by mu so the server's accept loop, the group controller's
// ticker, and the per-connection read loop can all touch a Client
// concurrently.
type Client struct {
	mu sync.RWMutex

	transport Transport

	tempID string
	guid   string
	group  string

	vadState  *vad.SessionState
	lastVoice time.Time

	closed atomic.Bool
}

// New creates a Client bound to transport. The session starts
// unauthenticated with no temp ID assigned.
func New(transport Transport) *Client {
	return &Client{
		transport: transport,
		lastVoice: time.Now(),
	}
}

// AssignTempID gives the session a provisional identity, clearing any prior
// GUID/group — mirrors the original's AssignTempID resetting authenticated
// state.
func (c *Client) AssignTempID(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tempID = tempID
	c.guid = ""
	c.group = ""
}

// SetGUID authenticates the session against an allow-listed client,
// clearing the provisional temp ID.
func (c *Client) SetGUID(guid, group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guid = guid
	c.group = group
	c.tempID = ""
}

// ID returns the GUID if authenticated, otherwise the temp ID.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.guid != "" {
		return c.guid
	}
	return c.tempID
}

// IsAuthenticated reports whether SetGUID has been called.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guid != ""
}

// Group returns the authenticated client's assigned group, or "" if the
// session is still provisional.
func (c *Client) Group() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.group
}

// InitVADState attaches a fresh recurrent VAD state for a newly-locked
// cycle and resets the silence clock.
func (c *Client) InitVADState(state *vad.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vadState = state
	c.lastVoice = time.Now()
}

// VADState returns the client's current recurrent VAD state, or nil if one
// hasn't been initialized for this cycle.
func (c *Client) VADState() *vad.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vadState
}

// UpdateLastVoice marks that speech was just observed.
func (c *Client) UpdateLastVoice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastVoice = time.Now()
}

// TimeSinceLastVoiceMs returns the elapsed time since the last observed
// speech, in milliseconds.
func (c *Client) TimeSinceLastVoiceMs() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastVoice).Milliseconds()
}

// SendJSON sends v over the client's transport.
func (c *Client) SendJSON(v any) error {
	c.mu.RLock()
	send := c.transport.SendJSON
	c.mu.RUnlock()
	if send == nil {
		return nil
	}
	return send(v)
}

// SendStop sends the stop control message instructing the client to abort
// its local capture.
func (c *Client) SendStop() error {
	return c.SendJSON(protocol.NewStop())
}

// MarkClosed records that the underlying connection is gone. Group
// controllers treat a closed client's candidacy as dead without needing a
// true weak reference.
func (c *Client) MarkClosed() {
	c.closed.Store(true)
}

// IsClosed reports whether MarkClosed has been called.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
