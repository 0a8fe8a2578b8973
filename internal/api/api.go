// internal/api/api.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cnc-monitor/internal/command"
	"github.com/tamzrod/cnc-monitor/internal/history"
	"github.com/tamzrod/cnc-monitor/internal/modbus"
	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/scan"
	"github.com/tamzrod/cnc-monitor/internal/state"
)

// Server is the thin HTTP shim over the core: read-only snapshot access,
// the command path, and the diagnostic scanner.
type Server struct {
	store       *state.Store
	issuer      *command.Issuer
	scanner     *scan.Scanner
	recorder    *history.Recorder // nil when history is disabled
	defaultUnit uint8
	log         zerolog.Logger
}

// New creates the API server. recorder may be nil.
func New(store *state.Store, issuer *command.Issuer, scanner *scan.Scanner, recorder *history.Recorder, defaultUnit uint8, log zerolog.Logger) *Server {
	return &Server{
		store:       store,
		issuer:      issuer,
		scanner:     scanner,
		recorder:    recorder,
		defaultUnit: defaultUnit,
		log:         log,
	}
}

// Routes builds the HTTP mux. metricsHandler serves /metrics.
func (s *Server) Routes(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/lot/target", s.handleLotTarget)
	mux.HandleFunc("/api/stopper", s.handleStopper)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/history", s.handleHistory)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	return mux
}

// statusResponse is the snapshot plus derived lot progress.
type statusResponse struct {
	state.MachineState
	LotProgressPct float64 `json:"lot_progress_pct"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		MachineState:   snap,
		LotProgressPct: snap.LotProgressPct(),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	body := struct {
		Command string `json:"command"`
		Value   *bool  `json:"value"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	value := true
	if body.Value != nil {
		value = *body.Value
	}

	if err := s.issuer.Discrete(body.Command, value); err != nil {
		s.writeIssuerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": body.Command, "value": value})
}

func (s *Server) handleLotTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	body := struct {
		Target *float64 `json:"target"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Target == nil {
		httpError(w, http.StatusBadRequest, "'target' must be a non-negative integer")
		return
	}

	written, err := s.issuer.WriteNumeric(regmap.RegLotTarget, *body.Target)
	if err != nil {
		s.writeIssuerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lot_target": written})
}

func (s *Server) handleStopper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	body := struct {
		Bit   string `json:"bit"`
		Value *bool  `json:"value"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	value := true
	if body.Value != nil {
		value = *body.Value
	}

	if err := s.issuer.StopperBit(body.Bit, value); err != nil {
		s.writeIssuerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "bit": body.Bit, "value": value})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	body := struct {
		UnitID *uint8 `json:"unit_id"`
	}{}
	// Empty body is fine: scan the configured unit.
	_ = json.NewDecoder(r.Body).Decode(&body)

	unit := s.defaultUnit
	if body.UnitID != nil {
		unit = *body.UnitID
	}

	rep, err := s.scanner.Run(unit)
	if err != nil {
		s.writeIssuerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.recorder == nil {
		httpError(w, http.StatusNotFound, "history recording is disabled")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("history query failed")
		httpError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// writeIssuerError maps the core error taxonomy onto HTTP statuses:
// validation 400, transport unreachable 503, peer rejection 502.
func (s *Server) writeIssuerError(w http.ResponseWriter, err error) {
	var connErr *modbus.ConnError
	var protoErr *modbus.ProtoError

	switch {
	case errors.Is(err, command.ErrInvalidCommand), errors.Is(err, command.ErrInvalidValue):
		httpError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &connErr):
		httpError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &protoErr):
		httpError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error().Err(err).Msg("command failed")
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
