//go:build onnx

package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/boww-net/boww-server/internal/logging"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// onnxEngine runs Silero VAD v5 inference through ONNX Runtime. It is always
// returned non-nil from NewEngine, even when the model failed to load: in
// that case session is nil and Process degrades to 0.0, matching the
// original server's "warn and continue without VAD" startup behavior.
type onnxEngine struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	logger  logging.Logger

	input  *ort.Tensor[float32]
	state  *ort.Tensor[float32]
	sr     *ort.Tensor[int64]
	output *ort.Tensor[float32]
	stateN *ort.Tensor[float32]
}

// NewEngine loads modelPath as a Silero VAD v5 ONNX model. A non-nil error is
// returned alongside a usable, inert Engine so callers can log a warning and
// keep running with VAD silently degraded to 0.0, rather than failing
// startup outright.
func NewEngine(modelPath string, logger logging.Logger) (Engine, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	e := &onnxEngine{logger: logger}
	if err := e.init(modelPath); err != nil {
		return e, fmt.Errorf("vad: %w", err)
	}
	return e, nil
}

func (e *onnxEngine) init(modelPath string) error {
	ortInitOnce.Do(func() {
		libPath, err := resolveORTLibPath()
		if err != nil {
			ortInitErr = fmt.Errorf("resolve ort lib: %w", err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return ortInitErr
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, ChunkSamples))
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}
	state, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateDim))
	if err != nil {
		input.Destroy()
		return fmt.Errorf("create state tensor: %w", err)
	}
	sr, err := ort.NewTensor(ort.NewShape(1), []int64{SampleRate})
	if err != nil {
		input.Destroy()
		state.Destroy()
		return fmt.Errorf("create sr tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		state.Destroy()
		sr.Destroy()
		return fmt.Errorf("create output tensor: %w", err)
	}
	stateN, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateDim))
	if err != nil {
		input.Destroy()
		state.Destroy()
		sr.Destroy()
		output.Destroy()
		return fmt.Errorf("create stateN tensor: %w", err)
	}

	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		input.Destroy()
		state.Destroy()
		sr.Destroy()
		output.Destroy()
		stateN.Destroy()
		return fmt.Errorf("read model file: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		modelData,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{input, state, sr},
		[]ort.Value{output, stateN},
		nil,
	)
	if err != nil {
		input.Destroy()
		state.Destroy()
		sr.Destroy()
		output.Destroy()
		stateN.Destroy()
		return fmt.Errorf("create session: %w", err)
	}

	e.session, e.input, e.state, e.sr, e.output, e.stateN = session, input, state, sr, output, stateN
	return nil
}

func (e *onnxEngine) CreateSessionState() *SessionState { return newSessionState() }

// Process never returns an error: a nil session (failed init) or an
// inference error both degrade to 0.0, per the VAD contract.
func (e *onnxEngine) Process(sess *SessionState, pcm []int16) float32 {
	if e.session == nil || sess == nil || len(pcm) != ChunkSamples {
		return 0.0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.input.GetData()
	for i, s := range pcm {
		in[i] = float32(s) / 32768.0
	}
	copy(e.state.GetData(), sess.state)

	if err := e.session.Run(); err != nil {
		e.logger.Warn("vad: inference failed, degrading to 0.0", "error", err)
		return 0.0
	}

	copy(sess.state, e.stateN.GetData())
	return e.output.GetData()[0]
}

func (e *onnxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.state != nil {
		e.state.Destroy()
	}
	if e.sr != nil {
		e.sr.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
	if e.stateN != nil {
		e.stateN.Destroy()
	}
	return nil
}
