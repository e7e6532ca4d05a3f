// Package protocol defines the JSON control-message envelope exchanged over
// the WebSocket transport, per the wire protocol's `type`-discriminated
// frames.
package protocol

const (
	TypeHello      = "hello"
	TypeConfidence = "confidence"
	TypeConfRec    = "conf_rec"
	TypeStop       = "stop"
	TypeAssignID   = "assign_id"
)

// Envelope is decoded first to recover type before unmarshaling the
// type-specific payload.
type Envelope struct {
	Type string `json:"type"`
}

// Hello is sent client→server to authenticate a provisional session.
type Hello struct {
	Type string `json:"type"`
	GUID string `json:"guid"`
}

// Confidence reports a wake-word confidence score for an authenticated
// session.
type Confidence struct {
	Type  string  `json:"type"`
	Value float32 `json:"value"`
}

// ConfRec acknowledges receipt of a confidence score.
type ConfRec struct {
	Type string `json:"type"`
}

// NewConfRec builds the server→client acknowledgement.
func NewConfRec() ConfRec { return ConfRec{Type: TypeConfRec} }

// Stop instructs a client to cease local capture immediately.
type Stop struct {
	Type string `json:"type"`
}

// NewStop builds the server→client stop signal.
func NewStop() Stop { return Stop{Type: TypeStop} }

// AssignID tells a provisional client which GUID to adopt and reconnect
// with.
type AssignID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewAssignID builds the server→client onboarding message.
func NewAssignID(id string) AssignID { return AssignID{Type: TypeAssignID, ID: id} }
