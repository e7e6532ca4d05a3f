//go:build !onnx

package vad

import "testing"

func TestStubEngineAlwaysReturnsZero(t *testing.T) {
	e, err := NewEngine("unused.onnx", nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	state := e.CreateSessionState()
	pcm := make([]int16, ChunkSamples)
	for i := range pcm {
		pcm[i] = 12000
	}

	for i := 0; i < 5; i++ {
		if prob := e.Process(state, pcm); prob != 0.0 {
			t.Fatalf("expected stub engine to report 0.0, got %f", prob)
		}
	}
}

func TestCreateSessionStateIsFreshEachCall(t *testing.T) {
	e, _ := NewEngine("unused.onnx", nil)
	s1 := e.CreateSessionState()
	s2 := e.CreateSessionState()
	if s1 == s2 {
		t.Fatal("expected distinct session state instances")
	}
	if len(s1.state) != stateLen {
		t.Fatalf("expected state length %d, got %d", stateLen, len(s1.state))
	}
}
