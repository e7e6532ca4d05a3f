//go:build !onnx

package vad

import "github.com/boww-net/boww-server/internal/logging"

// NewEngine builds the VAD backend compiled into this binary. Without the
// onnx build tag, the module carries no ONNX Runtime dependency and always
// runs the silent-degradation stub: every inference reports 0.0, matching
// what a real backend does when its model fails to load.
func NewEngine(_ string, _ logging.Logger) (Engine, error) {
	return &stubEngine{}, nil
}

type stubEngine struct{}

func (s *stubEngine) CreateSessionState() *SessionState { return newSessionState() }

func (s *stubEngine) Process(_ *SessionState, _ []int16) float32 { return 0.0 }

func (s *stubEngine) Close() error { return nil }
