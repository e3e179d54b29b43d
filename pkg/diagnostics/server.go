// Package diagnostics serves exporter health over HTTP.
package diagnostics

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
)

// StatusPath is the route of the status endpoint.
const StatusPath = "/otlpexport/status"

// Snapshot is the document returned by the status endpoint.
type Snapshot struct {
	StartTime         time.Time        `json:"start_time"`
	LastReloadTime    time.Time        `json:"last_reload_time"`
	ConfigReloadCount int64            `json:"config_reload_count"`
	Exporters         []ExporterStatus `json:"exporters"`
	Timestamp         time.Time        `json:"timestamp"`
}

// Exporter returns the status of the exporter for signal, if present.
func (s Snapshot) Exporter(signal string) (ExporterStatus, bool) {
	for _, st := range s.Exporters {
		if st.Signal == signal {
			return st, true
		}
	}

	return ExporterStatus{}, false
}

// ExporterStatus describes one exporter.
type ExporterStatus struct {
	Signal    string `json:"signal"`
	Transport string `json:"transport"`
	Protocol  string `json:"protocol"`
	Endpoint  string `json:"endpoint"`
	State     string `json:"state"`
	// Exported counts records accepted by the collector, Failed records that
	// were not, and Rejected records refused through partial success.
	Exported      int64     `json:"exported"`
	Failed        int64     `json:"failed"`
	Rejected      int64     `json:"rejected"`
	InFlight      int64     `json:"in_flight"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorTime time.Time `json:"last_error_time,omitzero"`
}

// SnapshotProvider supplies diagnostic snapshots.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// Server exposes exporter status over HTTP.
type Server struct {
	cfg      config.DiagnosticsConfig
	provider SnapshotProvider

	server *http.Server
	mu     sync.Mutex
	start  sync.Once
	stop   sync.Once
}

// NewServer constructs a diagnostics server.
func NewServer(cfg config.DiagnosticsConfig, provider SnapshotProvider) *Server {
	return &Server{
		cfg:      cfg,
		provider: provider,
	}
}

// Start begins serving until ctx is canceled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.HTTPAddr == "" {
		return ewrap.New("diagnostics http_addr is required")
	}

	var startErr error

	s.start.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET "+StatusPath, s.HandleStatus)

		lc := net.ListenConfig{}

		ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
		if err != nil {
			startErr = ewrap.Wrap(err, "listen diagnostics")

			return
		}

		srv := &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		}

		s.mu.Lock()
		s.server = srv
		s.mu.Unlock()

		go func() {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
			defer cancel()

			_ = s.Shutdown(shutdownCtx)
		}()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				//nolint:errcheck // nothing left to report to once Serve returns.
				_ = ewrap.Wrap(err, "diagnostics server stopped")
			}
		}()
	})

	return startErr
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.stop.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.server == nil {
			return
		}

		shutdownErr = s.server.Shutdown(ctx)
		s.server = nil
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown diagnostics server")
	}

	return nil
}

// HandleStatus writes the current snapshot as JSON.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" && !validAuth(r.Header.Get("Authorization"), s.cfg.AuthToken) {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	snapshot := s.provider.Snapshot()
	snapshot.Timestamp = time.Now().UTC()

	body, err := json.Marshal(snapshot)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func validAuth(header, token string) bool {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return false
	}

	got := strings.TrimSpace(header[len(prefix):])

	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
