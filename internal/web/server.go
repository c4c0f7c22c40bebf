// Package web provides an HTTP status and control server for the step-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/status"
)

// Server serves the status page over HTTP and accepts pipeline commands.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   chan<- logic.Command
	logger     *zap.Logger
}

// New creates a Server that reads state from the given tracker. Commands
// posted to /reset, /activate and /deactivate are forwarded to commands;
// a nil channel disables those endpoints.
func New(addr string, tracker *status.Tracker, commands chan<- logic.Command, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{tracker: tracker, commands: commands, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if commands != nil {
		mux.HandleFunc("/reset", s.handleCommand(logic.CommandReset))
		mux.HandleFunc("/activate", s.handleCommand(logic.CommandActivate))
		mux.HandleFunc("/deactivate", s.handleCommand(logic.CommandDeactivate))
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.commands != nil); err != nil {
		s.logger.Error("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(status.FormatJSON(snap)); err != nil {
		s.logger.Warn("write status json", zap.Error(err))
	}
}

// CommandResponse acknowledges a queued command.
type CommandResponse struct {
	Command string `json:"command"`
	Queued  bool   `json:"queued"`
}

func (s *Server) handleCommand(cmd logic.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		select {
		case s.commands <- cmd:
		default:
			s.logger.Warn("command queue full", zap.String("command", string(cmd)))
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}

		s.logger.Info("command received over http",
			zap.String("command", string(cmd)), zap.String("remote", r.RemoteAddr))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(CommandResponse{Command: string(cmd), Queued: true}); err != nil {
			s.logger.Warn("write command response", zap.String("command", string(cmd)), zap.Error(err))
		}
	}
}
