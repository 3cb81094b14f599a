// Package api provides the HTTP API for observing a running world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
	"github.com/talgya/goalnet/internal/persistence"
	"github.com/talgya/goalnet/internal/tasks"
)

// Server serves the world state over HTTP.
type Server struct {
	Runner    *engine.Runner
	Collector *collector.Collector // Written under the runner lock
	Run       *persistence.Run     // Optional
	Port      int
	AdminKey  string // Bearer token for POST endpoints. Empty = POST disabled.

	// Live is the template config for /ws sessions, each of which runs its
	// own world.
	Live     config.Config
	LiveStep float64

	srv *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	wsLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgentDetail)
	mux.HandleFunc("GET /api/v1/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/v1/network", s.handleNetwork)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	// Live task-network visualizer.
	mux.HandleFunc("GET /ws", RateLimitMiddleware(wsLimiter, s.handleLive))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsHandler(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsHandler allows the local dev servers plus any origin listed in the
// comma-separated CORS_ORIGINS env var.
func corsHandler(next http.Handler) http.Handler {
	origins := []string{
		"http://localhost:5173",
		"http://localhost:4173",
		"http://localhost:3000",
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(next)
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no GOALNET_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Runner.View(func(world *engine.World) {
		cfg := world.Config()
		status = map[string]any{
			"name":         "goalnet",
			"clock":        world.Clock(),
			"max_clock":    cfg.MaxClock,
			"state":        world.State().String(),
			"seed":         cfg.RandomSeed,
			"speed":        s.Runner.Speed(),
			"running":      s.Runner.Running(),
			"agents":       len(world.AgentIDs()),
			"tasks":        len(world.TaskIDs()),
			"edges":        world.Network().EdgeCount(),
			"pending":      world.Pending(),
			"total_wealth": world.TotalWealth(),
		}
	})
	writeJSON(w, status)
}

type agentSummary struct {
	ID               agents.AgentID `json:"id"`
	PropensityToHelp float64        `json:"propensity_to_help"`
	Centralization   float64        `json:"centralization"`
	Greed            float64        `json:"greed"`
	Wealth           float64        `json:"wealth"`
	Degree           int            `json:"degree"`
	Task             *tasks.TaskID  `json:"task,omitempty"`
	Turns            int            `json:"turns"`
}

func summarize(a *agents.Agent) agentSummary {
	return agentSummary{
		ID:               a.ID,
		PropensityToHelp: a.PropensityToHelp,
		Centralization:   a.Centralization,
		Greed:            a.Greed,
		Wealth:           a.Wealth,
		Degree:           len(a.Network),
		Task:             a.Task,
		Turns:            a.Turns,
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	var result []agentSummary
	s.Runner.View(func(world *engine.World) {
		for _, id := range world.AgentIDs() {
			result = append(result, summarize(world.Agent(id)))
		}
	})
	writeJSON(w, result)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	type historyEntry struct {
		Counterparty agents.AgentID `json:"counterparty"`
		Value        float64        `json:"value"`
		Time         float64        `json:"time"`
	}
	type agentDetail struct {
		agentSummary
		Neighbors         []agents.AgentID           `json:"neighbors"`
		WillingnessToHelp map[agents.AgentID]float64 `json:"willingness_to_help"`
		OwnTask           *tasks.Task                `json:"own_task,omitempty"`
		RecentHistory     []historyEntry             `json:"recent_history"`
		HistoryLength     int                        `json:"history_length"`
	}

	var detail *agentDetail
	s.Runner.View(func(world *engine.World) {
		a := world.Agent(agents.AgentID(id))
		if a == nil {
			return
		}
		d := &agentDetail{
			agentSummary:      summarize(a),
			Neighbors:         a.Neighbors(),
			WillingnessToHelp: a.WillingnessMap(world.Clock(), world.Decay()),
			HistoryLength:     len(a.History),
			RecentHistory:     []historyEntry{},
		}
		if a.Task != nil {
			if t := world.Task(*a.Task); t != nil {
				st := t.State()
				d.OwnTask = &st
			}
		}
		start := len(a.History) - 20
		if start < 0 {
			start = 0
		}
		for _, h := range a.History[start:] {
			d.RecentHistory = append(d.RecentHistory, historyEntry(h))
		}
		detail = d
	})

	if detail == nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, detail)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("state")
	switch filter {
	case "", "active", "completed":
	default:
		http.Error(w, "state must be active or completed", http.StatusBadRequest)
		return
	}

	result := []tasks.Task{}
	s.Runner.View(func(world *engine.World) {
		for _, id := range world.TaskIDs() {
			t := world.Task(id)
			if (filter == "active" && !t.Active) || (filter == "completed" && !t.Completed) {
				continue
			}
			result = append(result, t.State())
		}
	})
	writeJSON(w, result)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var resp map[string]any
	s.Runner.View(func(world *engine.World) {
		resp = map[string]any{
			"clock":      world.Clock(),
			"nodes":      world.Network().Nodes(),
			"links":      world.Network().Edges(),
			"task_links": collector.BuildTaskNetwork(world),
		}
	})
	writeJSON(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp map[string]any
	s.Runner.View(func(world *engine.World) {
		active, completed := 0, 0
		wealth := make(map[agents.AgentID]float64)
		for _, id := range world.TaskIDs() {
			t := world.Task(id)
			if t.Completed {
				completed++
			} else if t.Active {
				active++
			}
		}
		for _, id := range world.AgentIDs() {
			wealth[id] = world.Agent(id).Wealth
		}
		resp = map[string]any{
			"clock":           world.Clock(),
			"counters":        world.Stats(),
			"active_tasks":    active,
			"completed_tasks": completed,
			"total_wealth":    world.TotalWealth(),
			"gini":            collector.Gini(wealth),
		}
		if s.Collector != nil {
			resp["snapshots"] = len(s.Collector.Snapshots())
		}
	})
	writeJSON(w, resp)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Runner.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Runner.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Collector == nil {
		http.Error(w, "collector not available", http.StatusServiceUnavailable)
		return
	}

	var (
		clock float64
		count int
		err   error
	)
	s.Runner.View(func(world *engine.World) {
		s.Collector.Collect(world)
		clock = world.Clock()
		count = len(s.Collector.Snapshots())
		if s.Run != nil {
			states := make([]tasks.Task, 0, len(world.TaskIDs()))
			for _, id := range world.TaskIDs() {
				states = append(states, world.Task(id).State())
			}
			err = s.Run.SaveTasks(states)
		}
	})
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"clock":     clock,
		"snapshots": count,
		"message":   "snapshot saved",
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
