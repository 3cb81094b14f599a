package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
)

const (
	readyMessage    = "Ready!"
	defaultLiveStep = 2.0
	liveReadTimeout = 5 * time.Minute
	liveWriteWait   = 5 * time.Second
	maxLiveConns    = 4
	maxLiveAgents   = 2000
)

var liveConns int32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DefaultLiveConfig is the world each visualizer connection starts with.
func DefaultLiveConfig() config.Config {
	cfg := config.Default()
	cfg.AgentCount = 100
	cfg.MaxClock = 100
	cfg.CollectionIntervals = 4
	cfg.TaskSpeed = 1
	return cfg
}

type liveNode struct {
	ID agents.AgentID `json:"id"`
}

// liveFrame is one message to the visualizer. The first frame after a
// (re)start carries the nodes; later frames carry only task links not sent
// before.
type liveFrame struct {
	Clock float64              `json:"clock"`
	Nodes []liveNode           `json:"nodes,omitempty"`
	Links []collector.TaskLink `json:"links"`
	Done  bool                 `json:"done,omitempty"`
}

// liveParams is the restart request a client may send instead of "Ready!".
type liveParams struct {
	AgentCount *int     `json:"agent_count"`
	TaskSpeed  *float64 `json:"task_speed"`
}

// liveSession owns one private world. Only the connection's goroutine
// touches it.
type liveSession struct {
	cfg   config.Config
	step  float64
	world *engine.World
	next  float64
	sent  map[[2]agents.AgentID]bool
}

func newLiveSession(cfg config.Config, step float64) (*liveSession, error) {
	if step <= 0 {
		step = defaultLiveStep
	}
	ls := &liveSession{cfg: cfg, step: step}
	if err := ls.restart(); err != nil {
		return nil, err
	}
	return ls, nil
}

// restart discards the current world and builds a fresh one from cfg.
// A fixed seed in the template is dropped so every restart differs.
func (ls *liveSession) restart() error {
	cfg := ls.cfg
	cfg.RandomSeed = nil
	w, err := engine.NewWorld(cfg, nil)
	if err != nil {
		return err
	}
	if err := w.InitSchedules(); err != nil {
		return err
	}
	ls.world = w
	ls.next = ls.step
	ls.sent = make(map[[2]agents.AgentID]bool)
	return nil
}

// reconfigure applies p to the template and restarts.
func (ls *liveSession) reconfigure(p liveParams) error {
	cfg := ls.cfg
	if p.AgentCount != nil {
		if *p.AgentCount > maxLiveAgents {
			return fmt.Errorf("%w: agent_count above %d", config.ErrInvalidConfig, maxLiveAgents)
		}
		cfg.AgentCount = *p.AgentCount
	}
	if p.TaskSpeed != nil {
		cfg.TaskSpeed = *p.TaskSpeed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ls.cfg = cfg
	return ls.restart()
}

func (ls *liveSession) nodesFrame() liveFrame {
	f := liveFrame{Clock: ls.world.Clock(), Links: []collector.TaskLink{}}
	for _, id := range ls.world.Network().Nodes() {
		f.Nodes = append(f.Nodes, liveNode{ID: id})
	}
	return f
}

// advance ticks until the clock crosses the next step boundary, then returns
// the task links that appeared since the last frame. Done is set once the
// world has halted.
func (ls *liveSession) advance() (liveFrame, error) {
	done := ls.world.State() == engine.StateHalted
	for !done && ls.world.Clock() < ls.next {
		_, ok, err := ls.world.Tick()
		if err != nil {
			return liveFrame{}, err
		}
		done = !ok
	}
	if ls.next <= ls.world.Clock() {
		ls.next = stepCeil(ls.world.Clock(), ls.step)
	}

	f := liveFrame{Clock: ls.world.Clock(), Links: []collector.TaskLink{}, Done: done}
	for _, l := range collector.BuildTaskNetwork(ls.world) {
		key := [2]agents.AgentID{l.Source, l.Target}
		if ls.sent[key] {
			continue
		}
		ls.sent[key] = true
		f.Links = append(f.Links, l)
	}
	return f, nil
}

// handle reacts to one client message and returns the frame to send.
func (ls *liveSession) handle(msg []byte) (liveFrame, error) {
	if string(msg) == readyMessage {
		return ls.advance()
	}
	var p liveParams
	if err := json.Unmarshal(msg, &p); err != nil {
		return liveFrame{}, fmt.Errorf("unrecognized message: %w", err)
	}
	if err := ls.reconfigure(p); err != nil {
		return liveFrame{}, err
	}
	return ls.nodesFrame(), nil
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&liveConns, 1)
	defer atomic.AddInt32(&liveConns, -1)
	if current > maxLiveConns {
		http.Error(w, "too many live connections", http.StatusServiceUnavailable)
		return
	}

	tmpl := s.Live
	if tmpl.AgentCount == 0 {
		tmpl = DefaultLiveConfig()
	}
	ls, err := newLiveSession(tmpl, s.LiveStep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	slog.Info("live client connected", "remote", r.RemoteAddr, "agents", ls.cfg.AgentCount)

	if err := writeFrame(conn, ls.nodesFrame()); err != nil {
		return
	}
	// First update goes out without waiting for the client.
	frame, err := ls.advance()
	if err != nil || writeFrame(conn, frame) != nil {
		return
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Info("live client disconnected", "remote", r.RemoteAddr)
			return
		}
		frame, err := ls.handle(msg)
		if errors.Is(err, engine.ErrQueueEmpty) {
			closeWith(conn, websocket.CloseInternalServerErr, "world stopped")
			return
		}
		if err != nil {
			slog.Debug("live message rejected", "error", err)
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if conn.WriteJSON(map[string]string{"error": err.Error()}) != nil {
				return
			}
			continue
		}
		if writeFrame(conn, frame) != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f liveFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return conn.WriteJSON(f)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// stepCeil is the first multiple of step strictly above clock.
func stepCeil(clock, step float64) float64 {
	return (math.Floor(clock/step) + 1) * step
}
