// Package group implements the Group Controller: per-group arbitration
// among candidate clients, the locked single-streamer audio pipeline, and
// VAD-driven silence detection, exactly mirroring the original
// GroupController's single-mutex state machine.
package group

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/boww-net/boww-server/internal/agc"
	"github.com/boww-net/boww-server/internal/logging"
	"github.com/boww-net/boww-server/internal/router"
	"github.com/boww-net/boww-server/internal/session"
	"github.com/boww-net/boww-server/internal/vad"
)

// State is one of the three group lifecycle states.
type State int

const (
	Idle State = iota
	Arbitrating
	Locked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Arbitrating:
		return "ARBITRATING"
	case Locked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

const (
	// vadChunkSamples is vad.ChunkSamples under a local name, because it is
	// also the unit the AGC and the output attenuation operate on.
	vadChunkSamples = vad.ChunkSamples

	// jitterTarget is the accumulated-sample threshold that triggers a
	// router write, smoothing small per-call chunk sizes into larger
	// writes.
	jitterTarget = 2048

	// outputAttenuation scales the raw (non-AGC) output path so the
	// recorded/played audio isn't as hot as the detection sidechain.
	outputAttenuation = 0.4
)

// Config is a group's tunable parameters, parsed from YAML. A Controller
// reads a pointer to its current Config only from resetGroup, so a
// hot-reloaded change never mutates an in-flight locked cycle.
type Config struct {
	Name                 string
	SampleRate           int
	Channels             int
	ArbitrationTimeoutMs int
	VadNoVoiceMs         int
	OutputKind           router.Kind
	OutputTarget         string
	FallbackToFileOnBusy bool
}

func (c Config) routerConfig() router.Config {
	return router.Config{
		GroupName:            c.Name,
		SampleRate:           c.SampleRate,
		Channels:             c.Channels,
		Kind:                 c.OutputKind,
		Target:               c.OutputTarget,
		FallbackToFileOnBusy: c.FallbackToFileOnBusy,
	}
}

type candidate struct {
	score  float32
	client *session.Client
}

// Controller owns one group's arbitration and locked-streaming state. One
// mutex protects everything: state, candidates, the active streamer, and
// the pipeline buffers. All public methods acquire it; hold time is bounded
// by draining whatever's currently buffered, matching the original's
// documented trade-off.
type Controller struct {
	mu sync.Mutex

	cfg        Config
	pendingCfg *Config

	vadEngine vad.Engine
	agc       *agc.AGC
	router    *router.Router
	logger    logging.Logger

	state            State
	candidates       map[string]*candidate
	activeStreamer   *session.Client
	arbitrationStart time.Time

	ingestBuffer []int16
	accumulator  []int16
}

// New builds a Controller for cfg, sharing vadEngine with every other group
// (the recurrent model itself is stateless across groups; per-speaker state
// lives on session.Client).
func New(cfg Config, vadEngine vad.Engine, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Controller{
		cfg:        cfg,
		vadEngine:  vadEngine,
		agc:        agc.New(),
		router:     router.New(cfg.routerConfig(), logger),
		logger:     logger,
		candidates: make(map[string]*candidate),
	}
}

// State returns the group's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UpdateConfig stages a new configuration, applied only the next time this
// group transitions back to IDLE — never mutating a locked cycle in flight.
func (c *Controller) UpdateConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCfg = &cfg
}

// HandleConfidence records a confidence score from client, entering
// ARBITRATING if the group was IDLE. Scores received while LOCKED are
// ignored — the winner has already been decided.
func (c *Controller) HandleConfidence(client *session.Client, score float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Locked {
		return
	}

	c.candidates[client.ID()] = &candidate{score: score, client: client}

	if c.state == Idle {
		c.state = Arbitrating
		c.arbitrationStart = time.Now()
	}
}

// HandleAudio feeds pcm through the split-path pipeline if client is the
// current locked streamer. A no-op otherwise (unauthenticated, wrong
// client, or the group isn't LOCKED).
func (c *Controller) HandleAudio(client *session.Client, pcm []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Locked || client != c.activeStreamer {
		return
	}

	c.ingestBuffer = append(c.ingestBuffer, pcm...)

	for len(c.ingestBuffer) >= vadChunkSamples {
		chunk := c.ingestBuffer[:vadChunkSamples]
		c.ingestBuffer = c.ingestBuffer[vadChunkSamples:]

		raw := make([]int16, vadChunkSamples)
		copy(raw, chunk)
		detect := make([]int16, vadChunkSamples)
		copy(detect, chunk)

		c.agc.Process(detect)
		prob := c.vadEngine.Process(client.VADState(), detect)
		if prob > 0.5 {
			client.UpdateLastVoice()
		}

		for _, s := range raw {
			c.accumulator = append(c.accumulator, attenuate(s))
		}
	}

	if len(c.accumulator) >= jitterTarget {
		c.router.Write(c.accumulator)
		c.accumulator = c.accumulator[:0]
	}
}

// OnTick advances the arbitration timeout and the locked silence timeout.
// Called once per server-wide 10ms tick for every group.
func (c *Controller) OnTick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Arbitrating:
		elapsedMs := now.Sub(c.arbitrationStart).Milliseconds()
		if elapsedMs >= int64(c.cfg.ArbitrationTimeoutMs) {
			c.resolveArbitration()
		}
	case Locked:
		if c.activeStreamer == nil || c.activeStreamer.IsClosed() {
			c.resetGroup()
			return
		}
		// Silence is measured as of now, the tick's own timestamp.
		silenceMs := c.activeStreamer.TimeSinceLastVoiceMs() + now.Sub(time.Now()).Milliseconds()
		if silenceMs > int64(c.cfg.VadNoVoiceMs) {
			c.activeStreamer.SendStop()
			for _, cand := range c.candidates {
				if cand.client != c.activeStreamer && !cand.client.IsClosed() {
					cand.client.SendStop()
				}
			}
			c.resetGroup()
		}
	}
}

// resolveArbitration picks the highest-scoring live candidate, locks the
// group onto it, and notifies every other live candidate to stand down.
// Must be called with mu held.
func (c *Controller) resolveArbitration() {
	ids := make([]string, 0, len(c.candidates))
	for id := range c.candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var winner *session.Client
	bestScore := float32(math.Inf(-1))

	for _, id := range ids {
		cand := c.candidates[id]
		if cand.client.IsClosed() {
			delete(c.candidates, id)
			continue
		}
		if cand.score > bestScore {
			bestScore = cand.score
			winner = cand.client
		}
	}

	if winner == nil {
		c.resetGroup()
		return
	}

	c.state = Locked
	c.activeStreamer = winner
	c.ingestBuffer = c.ingestBuffer[:0]
	c.accumulator = c.accumulator[:0]
	winner.InitVADState(c.vadEngine.CreateSessionState())

	if !c.router.Open(winner.ID()) {
		c.logger.Warn("group: output sink open failed, returning to idle", "group", c.cfg.Name)
		c.resetGroup()
		return
	}

	for _, cand := range c.candidates {
		if cand.client != winner && !cand.client.IsClosed() {
			cand.client.SendStop()
		}
	}
}

// resetGroup returns the group to IDLE, applying any staged config change.
// Must be called with mu held.
func (c *Controller) resetGroup() {
	c.state = Idle
	c.candidates = make(map[string]*candidate)
	c.activeStreamer = nil
	c.router.Close()
	if c.pendingCfg != nil {
		c.cfg = *c.pendingCfg
		c.pendingCfg = nil
		c.router = router.New(c.cfg.routerConfig(), c.logger)
	}
	c.ingestBuffer = nil
	c.accumulator = nil
}

func attenuate(s int16) int16 {
	v := float64(s) * outputAttenuation
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
