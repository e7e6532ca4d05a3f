package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/boww-net/boww-server/internal/logging"
)

// pollInterval matches the 2-second reparse cadence the wire-format
// description mandates (glyphoxa's own Watcher defaults to 5s; this is
// deliberately tighter per that requirement).
const pollInterval = 2 * time.Second

// OnboardCallback fires exactly once per observed onboard_temp_id, the
// first time the Watcher sees that temp ID paired with a GUID and group.
type OnboardCallback func(tempID, guid, group string)

// GroupChangedCallback fires for every group entry on every successful
// reload — including ones that already existed — so the caller can decide
// whether to create a controller or stage a config update on an existing
// one. This mirrors the original parser's unconditional per-group callback.
type GroupChangedCallback func(cfg GroupConfig)

// Watcher polls a config file for changes and maintains the current View.
type Watcher struct {
	path     string
	interval time.Duration
	logger   logging.Logger

	onOnboard      OnboardCallback
	onGroupChanged GroupChangedCallback

	mu          sync.Mutex
	view        *View
	lastModTime time.Time
	onboarded   map[string]bool
}

// NewWatcher loads path immediately and returns a Watcher ready to poll via
// Run. The initial load failing is a startup error, not a degrade-and-retry
// condition.
func NewWatcher(path string, onOnboard OnboardCallback, onGroupChanged GroupChangedCallback, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	w := &Watcher{
		path:           path,
		interval:       pollInterval,
		logger:         logger,
		onOnboard:      onOnboard,
		onGroupChanged: onGroupChanged,
		onboarded:      make(map[string]bool),
	}
	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("config: initial load: %w", err)
	}
	return w, nil
}

// View returns the current read-only config snapshot.
func (w *Watcher) View() *View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Run polls the config file until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.checkAndReload()
		}
	}
}

func (w *Watcher) checkAndReload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config: cannot stat file, retaining previous state", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	unchanged := !info.ModTime().After(w.lastModTime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	if err := w.reload(); err != nil {
		w.logger.Warn("config: reparse failed, retaining previous state", "path", w.path, "error", err)
	}
}

func (w *Watcher) reload() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	file, err := Load(w.path)
	if err != nil {
		return err
	}

	view := buildView(file)

	w.mu.Lock()
	w.view = view
	w.lastModTime = info.ModTime()
	w.mu.Unlock()

	w.fireCallbacks(file)
	return nil
}

func (w *Watcher) fireCallbacks(file *File) {
	for _, c := range file.Clients {
		if c.OnboardTempID == "" {
			continue
		}
		w.mu.Lock()
		already := w.onboarded[c.OnboardTempID]
		if !already {
			w.onboarded[c.OnboardTempID] = true
		}
		w.mu.Unlock()
		if !already && w.onOnboard != nil {
			w.onOnboard(c.OnboardTempID, c.GUID, c.Group)
		}
	}

	if w.onGroupChanged != nil {
		for _, g := range file.Groups {
			w.onGroupChanged(g)
		}
	}
}
