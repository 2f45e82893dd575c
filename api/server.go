// Package api exposes a roaming network over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/journal"
	"github.com/openchargingcloud/wwcp/core/logger"
	"github.com/openchargingcloud/wwcp/core/monitoring"
)

// Server serves the network API.
type Server struct {
	net      *charging.Network
	journal  journal.Store
	log      logger.Logger
	wsBuffer int
}

type Option func(*Server)

// WithJournal enables GET /api/journal.
func WithJournal(s journal.Store) Option { return func(srv *Server) { srv.journal = s } }

func WithLogger(l logger.Logger) Option { return func(srv *Server) { srv.log = l } }

// WithWebsocketBuffer sets the number of changes queued per websocket client.
func WithWebsocketBuffer(n int) Option { return func(srv *Server) { srv.wsBuffer = n } }

func NewServer(n *charging.Network, opts ...Option) *Server {
	s := &Server{net: n, log: logger.NopLogger{}, wsBuffer: 64}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/network", s.getNetwork)
	mux.HandleFunc("GET /api/operators/{id}", s.getOperator)
	mux.HandleFunc("GET /api/pools/{id}", s.getPool)
	mux.HandleFunc("GET /api/stations/{id}", s.getStation)
	mux.HandleFunc("GET /api/evses/status", s.getEVSEStatus)
	mux.HandleFunc("GET /api/evses/{id}", s.getEVSE)
	mux.HandleFunc("PUT /api/evses/{id}/status", s.putStatus)
	mux.HandleFunc("PUT /api/evses/{id}/adminstatus", s.putAdminStatus)
	mux.HandleFunc("GET /api/reservations", s.listReservations)
	mux.HandleFunc("POST /api/reservations", s.reserve)
	mux.HandleFunc("DELETE /api/reservations/{id}", s.cancelReservation)
	mux.HandleFunc("GET /api/sessions", s.activeSessions)
	mux.HandleFunc("POST /api/sessions", s.remoteStart)
	mux.HandleFunc("GET /api/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.remoteStop)
	mux.HandleFunc("GET /api/journal", s.queryJournal)
	mux.HandleFunc("GET /api/events", s.events)
	return recoverer(mux)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				monitoring.CaptureException(fmt.Errorf("api handler panic: %v", rec), map[string]string{"module": "api", "path": r.URL.Path})
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
