// Package server implements the Server Core: the WebSocket accept loop,
// session bookkeeping (both the authenticated-session table and the
// onboarding temp-id table), message dispatch, and the group-wide 10ms
// ticker.
package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/boww-net/boww-server/internal/config"
	"github.com/boww-net/boww-server/internal/discovery"
	"github.com/boww-net/boww-server/internal/group"
	"github.com/boww-net/boww-server/internal/logging"
	"github.com/boww-net/boww-server/internal/protocol"
	"github.com/boww-net/boww-server/internal/session"
	"github.com/boww-net/boww-server/internal/vad"
)

// tickInterval drives arbitration and silence timeouts on every group.
const tickInterval = 10 * time.Millisecond

// onboardingLogPath is the append-only, human-visible record of every
// temp ID ever issued.
const onboardingLogPath = "connecting_clients.txt"

// Config bundles the startup parameters Server needs beyond the watched
// config file.
type Config struct {
	Port         int
	ConfigPath   string
	InstanceName string
	ModelPath    string
	Debug        bool
}

// Server owns every session, every group controller, and the background
// loops supervising them.
type Server struct {
	cfg    Config
	logger logging.Logger

	sessionsMu sync.RWMutex
	sessions   map[*websocket.Conn]*session.Client

	tempIDMu sync.Mutex
	tempIDs  map[string]*session.Client

	groupsMu sync.Mutex
	groups   map[string]*group.Controller

	vadEngine vad.Engine
	watcher   *config.Watcher

	onboardLogMu sync.Mutex
}

// New wires up a Server: loads the config file once (failure here is fatal,
// matching the CLI's non-zero exit on config load failure), and builds the
// VAD engine this process will use for every group.
func New(cfg Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	engine, err := vad.NewEngine(cfg.ModelPath, logger)
	if err != nil {
		logger.Warn("server: vad engine init failed, degrading to silence", "error", err)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[*websocket.Conn]*session.Client),
		tempIDs:   make(map[string]*session.Client),
		groups:    make(map[string]*group.Controller),
		vadEngine: engine,
	}

	watcher, err := config.NewWatcher(cfg.ConfigPath, s.onOnboarded, s.onGroupConfigChanged, logger)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s.watcher = watcher

	return s, nil
}

// Run starts the accept loop, the config watcher, the discovery beacon, and
// the group ticker, all supervised under ctx. The first of them to return an
// error cancels the shared context, which stops the others; Run returns once
// all of them have exited.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Handler(),
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.watcher.Run(ctx) })
	g.Go(func() error {
		adv := discovery.New(s.cfg.InstanceName, s.cfg.Port, s.logger)
		return adv.Run(ctx)
	})
	g.Go(func() error { return s.runTicker(ctx) })

	return g.Wait()
}

func (s *Server) runTicker(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.groupsMu.Lock()
			ctrls := make([]*group.Controller, 0, len(s.groups))
			for _, c := range s.groups {
				ctrls = append(ctrls, c)
			}
			s.groupsMu.Unlock()
			for _, c := range ctrls {
				c.OnTick(now)
			}
		}
	}
}

// Handler returns the HTTP handler exposing the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("server: websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := session.New(session.Transport{
		SendJSON: func(v any) error {
			return wsjson.Write(r.Context(), conn, v)
		},
	})

	tempID := s.generateTempID()
	client.AssignTempID(tempID)
	s.registerSession(conn, client, tempID)
	s.logOnboarding(tempID)

	defer s.removeSession(conn, tempID, client)

	ctx := r.Context()
	for {
		mt, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}
		switch mt {
		case websocket.MessageText:
			s.handleText(client, payload)
		case websocket.MessageBinary:
			s.handleBinary(client, payload)
		}
	}
}

func (s *Server) handleText(client *session.Client, payload []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Warn("server: malformed control message", "error", err)
		return
	}

	switch env.Type {
	case protocol.TypeHello:
		var hello protocol.Hello
		if err := json.Unmarshal(payload, &hello); err != nil {
			s.logger.Warn("server: malformed hello message", "error", err)
			return
		}
		if info, ok := s.watcher.View().LookupClient(hello.GUID); ok {
			client.SetGUID(hello.GUID, info.Group)
			s.logger.Info("server: client authenticated", "guid", hello.GUID, "group", info.Group)
		} else {
			s.logger.Info("server: hello with unknown guid ignored", "guid", hello.GUID)
		}

	case protocol.TypeConfidence:
		if !client.IsAuthenticated() {
			return
		}
		var conf protocol.Confidence
		if err := json.Unmarshal(payload, &conf); err != nil {
			s.logger.Warn("server: malformed confidence message", "error", err)
			return
		}
		ctrl := s.controllerFor(client.Group())
		if ctrl == nil {
			return
		}
		if err := client.SendJSON(protocol.NewConfRec()); err != nil {
			s.logger.Debug("server: conf_rec send failed", "error", err)
		}
		ctrl.HandleConfidence(client, conf.Value)
	}
}

func (s *Server) handleBinary(client *session.Client, payload []byte) {
	if !client.IsAuthenticated() {
		return
	}
	ctrl := s.controllerFor(client.Group())
	if ctrl == nil {
		return
	}
	ctrl.HandleAudio(client, decodeInt16LE(payload))
}

func decodeInt16LE(payload []byte) []int16 {
	n := len(payload) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return out
}

func (s *Server) controllerFor(groupName string) *group.Controller {
	if groupName == "" {
		return nil
	}
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	return s.groups[groupName]
}

func (s *Server) registerSession(conn *websocket.Conn, client *session.Client, tempID string) {
	s.sessionsMu.Lock()
	s.sessions[conn] = client
	s.sessionsMu.Unlock()

	s.tempIDMu.Lock()
	s.tempIDs[tempID] = client
	s.tempIDMu.Unlock()
}

func (s *Server) removeSession(conn *websocket.Conn, tempID string, client *session.Client) {
	client.MarkClosed()

	s.sessionsMu.Lock()
	delete(s.sessions, conn)
	s.sessionsMu.Unlock()

	s.tempIDMu.Lock()
	delete(s.tempIDs, tempID)
	s.tempIDMu.Unlock()
}

// onOnboarded delivers an assign_id to a still-connected provisional
// session, identified by the temp ID the config file paired with a GUID.
func (s *Server) onOnboarded(tempID, guid, _ string) {
	s.tempIDMu.Lock()
	client, ok := s.tempIDs[tempID]
	s.tempIDMu.Unlock()
	if !ok {
		return
	}
	if err := client.SendJSON(protocol.NewAssignID(guid)); err != nil {
		s.logger.Warn("server: assign_id send failed", "temp_id", tempID, "error", err)
	}
}

// onGroupConfigChanged creates a new group controller the first time a name
// is seen, and stages a config update on an existing one otherwise — never
// reconfiguring a controller in place from this callback directly.
func (s *Server) onGroupConfigChanged(cfg config.GroupConfig) {
	gcfg := group.Config{
		Name:                 cfg.Name,
		SampleRate:           cfg.SampleRate,
		Channels:             cfg.Channels,
		ArbitrationTimeoutMs: cfg.ArbitrationTimeoutMs,
		VadNoVoiceMs:         cfg.VadNoVoiceMs,
		OutputKind:           cfg.OutputKind(),
		OutputTarget:         cfg.Device,
		FallbackToFileOnBusy: cfg.Fallback(),
	}

	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	if ctrl, ok := s.groups[cfg.Name]; ok {
		ctrl.UpdateConfig(gcfg)
		return
	}
	s.groups[cfg.Name] = group.New(gcfg, s.vadEngine, s.logger)
	s.logger.Info("server: group controller started", "group", cfg.Name)
}

func (s *Server) generateTempID() string {
	const hexDigits = "0123456789ABCDEF"
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = hexDigits[rand.IntN(len(hexDigits))]
	}
	return "temp-" + string(suffix)
}

func (s *Server) logOnboarding(tempID string) {
	s.onboardLogMu.Lock()
	defer s.onboardLogMu.Unlock()

	f, err := os.OpenFile(onboardingLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("server: onboarding log open failed", "error", err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, tempID); err != nil {
		s.logger.Warn("server: onboarding log write failed", "error", err)
	}
}
