package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/developingchet/staywindow/internal/config"
	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/simulate"
	"github.com/developingchet/staywindow/internal/trip"
)

// maxImportBytes caps POST /v1/trips bodies.
const maxImportBytes = 1 << 20

// Server exposes a Tracker over HTTP and keeps the usage gauges fresh.
type Server struct {
	cfg        *config.Config
	tracker    *Tracker
	clock      Clock
	apiSrv     *http.Server
	metricsSrv *http.Server // nil when MetricsAddr == ""
}

// NewServer wires the API and metrics listeners for t.
func NewServer(cfg *config.Config, t *Tracker, clock Clock) *Server {
	s := &Server{cfg: cfg, tracker: t, clock: clock}

	s.apiSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.tracker.Store().Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/plan", s.handlePlan)
	mux.HandleFunc("GET /v1/next-entry", s.handleNextEntry)
	mux.HandleFunc("GET /v1/trips", s.handleExport)
	mux.HandleFunc("POST /v1/trips", s.handleImport)
	mux.HandleFunc("GET /v1/travellers", s.handleTravellers)
	return mux
}

// Run serves until ctx is cancelled, then shuts both listeners down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	listen := func(name string, srv *http.Server) {
		log.Info().Str("addr", srv.Addr).Msg(name + " server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}

	go listen("api", s.apiSrv)
	if s.metricsSrv != nil {
		go listen("metrics", s.metricsSrv)
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.tracker.RunRefresher(refreshCtx, s.clock, s.cfg.RefreshInterval)

	log.Info().
		Str("traveller", s.tracker.Traveller()).
		Str("rule", s.tracker.Rule().String()).
		Str("policy", s.tracker.Policy().Name).
		Str("backend", s.cfg.StoreBackend).
		Str("refresh", s.cfg.RefreshInterval.String()).
		Msg("staywindow started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server error")
	}
	s.shutdown()
	log.Info().Msg("staywindow stopped")
	return runErr
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{s.apiSrv, s.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("server shutdown error")
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.dayParam(w, r, "ref")
	if !ok {
		return
	}
	snap, err := s.trackerFor(r).Snapshot(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.dayParam(w, r, "entry")
	if !ok {
		return
	}
	plan, err := s.trackerFor(r).Plan(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type nextEntryResponse struct {
	From          dayindex.Day  `json:"from"`
	NextSafeEntry *dayindex.Day `json:"next_safe_entry,omitempty"`
	Exhausted     bool          `json:"exhausted,omitempty"`
}

func (s *Server) handleNextEntry(w http.ResponseWriter, r *http.Request) {
	from, ok := s.dayParam(w, r, "from")
	if !ok {
		return
	}
	next, err := s.trackerFor(r).NextSafeEntry(r.Context(), from)
	switch {
	case errors.Is(err, simulate.ErrBoundExhausted):
		writeJSON(w, http.StatusOK, nextEntryResponse{From: from, Exhausted: true})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, nextEntryResponse{From: from, NextSafeEntry: &next})
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	set, err := s.trackerFor(r).Trips(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := trip.EncodeCSV(w, set); err != nil {
			log.Warn().Err(err).Msg("csv export failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, set.Raw())
}

type skipView struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

type importResponse struct {
	Trips   []trip.Raw `json:"trips"`
	Skipped []skipView `json:"skipped"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := trip.DecodeJSON(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))

	set, skipped, err := s.trackerFor(r).ImportTrips(r.Context(), raw, replace)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := importResponse{Trips: set.Raw(), Skipped: make([]skipView, 0, len(skipped))}
	for _, sk := range skipped {
		resp.Skipped = append(resp.Skipped, skipView{Index: sk.Index, Field: sk.Field, Detail: sk.Detail})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTravellers(w http.ResponseWriter, r *http.Request) {
	names, err := s.tracker.Travellers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) trackerFor(r *http.Request) *Tracker {
	return s.tracker.For(r.URL.Query().Get("traveller"))
}

// dayParam reads a YYYY-MM-DD query parameter, defaulting to today. It writes
// a 400 and returns false when the value does not parse.
func (s *Server) dayParam(w http.ResponseWriter, r *http.Request, name string) (dayindex.Day, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return Today(s.clock), true
	}
	d, err := dayindex.Parse(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return 0, false
	}
	return d, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response failed")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
