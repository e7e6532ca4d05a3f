// Package router implements the Output Router: a single busy-flag-guarded
// sink per group that streams a locked cycle's attenuated audio to either a
// WAV file or a playback device, falling back from device to file on open
// failure without ever mutating the router's own configuration.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/boww-net/boww-server/internal/logging"
	"github.com/boww-net/boww-server/internal/wav"
)

// Kind selects the output sink a group writes to.
type Kind int

const (
	KindFile Kind = iota
	KindDevice
)

// Config is the router's static configuration, supplied once at group
// controller construction and replaced wholesale on hot-reload (see
// Controller.UpdateConfig) — never mutated in place by Open's fallback path.
type Config struct {
	GroupName            string
	SampleRate           int
	Channels             int
	Kind                 Kind
	Target               string
	FallbackToFileOnBusy bool
}

// sink is the minimal surface a concrete output (file or device) must
// implement.
type sink interface {
	write(chunk []int16)
	close() error
}

// deviceOpener opens a playback device sink. Overridable per Router so tests
// can exercise the fallback path without real audio hardware.
type deviceOpener func(cfg Config) (sink, error)

// Router owns the one active output sink for a group. Open, Write, and
// Close all acquire the same mutex, matching the original's single
// std::mutex-guarded AudioOutputRouter.
type Router struct {
	cfg    Config
	logger logging.Logger

	mu     sync.Mutex
	busy   bool
	active sink

	openDevice deviceOpener
}

// New builds a Router for cfg. Device sinks are opened through the real
// malgo-backed implementation unless overridden for tests.
func New(cfg Config, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Router{cfg: cfg, logger: logger, openDevice: openMalgoDevice}
}

// Open opens the configured sink for sourceID (a client identity used in the
// file sink's filename). Returns false if the router is already busy or if
// the configured sink — and its file fallback, if enabled — both fail to
// open.
func (r *Router) Open(sourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.busy {
		return false
	}

	s, err := r.openAs(r.cfg.Kind, sourceID)
	if err != nil && r.cfg.Kind == KindDevice && r.cfg.FallbackToFileOnBusy {
		r.logger.Warn("router: device open failed, falling back to file", "group", r.cfg.GroupName, "error", err)
		s, err = r.openAs(KindFile, sourceID)
	}
	if err != nil {
		r.logger.Error("router: output sink open failed", "group", r.cfg.GroupName, "error", err)
		return false
	}

	r.active = s
	r.busy = true
	return true
}

// openAs opens sink kind without touching r.cfg.Kind, so a device-to-file
// fallback never leaves the router's own configuration mutated — the
// "explicit open_as primitive" replacing the original's mutate-then-restore
// recursion.
func (r *Router) openAs(kind Kind, sourceID string) (sink, error) {
	switch kind {
	case KindFile:
		return newFileSink(sourceID, r.cfg.GroupName, r.cfg.SampleRate, r.cfg.Channels, time.Now())
	case KindDevice:
		return r.openDevice(r.cfg)
	default:
		return nil, fmt.Errorf("router: unknown output kind %d", kind)
	}
}

// Write pushes a chunk to the active sink. A no-op if the router isn't busy.
func (r *Router) Write(chunk []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.busy || r.active == nil {
		return
	}
	r.active.write(chunk)
}

// Close closes the active sink, if any, and frees the router to be opened
// again. Safe to call when not busy.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.busy {
		return
	}
	if r.active != nil {
		if err := r.active.close(); err != nil {
			r.logger.Warn("router: sink close error", "group", r.cfg.GroupName, "error", err)
		}
	}
	r.active = nil
	r.busy = false
}

// IsBusy reports whether a sink is currently open.
func (r *Router) IsBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}
