package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// reserveBody accepts the duration as a Go duration string, e.g. "15m".
type reserveBody struct {
	charging.ReserveRequest
	Duration string `json:"duration,omitempty"`
}

// resultStatus maps a successful operation to ok and every other result
// code to 409.
func resultStatus(success bool, ok int) int {
	if success {
		return ok
	}
	return http.StatusConflict
}

func (s *Server) reserve(w http.ResponseWriter, r *http.Request) {
	var body reserveBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := body.ReserveRequest
	if body.Duration != "" {
		d, err := time.ParseDuration(body.Duration)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("duration: %w", err))
			return
		}
		req.Duration = d
	}
	res := s.net.Reserve(r.Context(), req)
	writeJSON(w, resultStatus(res.Success(), http.StatusCreated), res)
}

func (s *Server) cancelReservation(w http.ResponseWriter, r *http.Request) {
	res := s.net.CancelReservation(r.Context(), charging.CancelReservationRequest{
		ReservationID: r.PathValue("id"),
		Reason:        r.URL.Query().Get("reason"),
	})
	code := resultStatus(res.Success(), http.StatusOK)
	if res.Code == charging.CancelUnknownReservation {
		code = http.StatusNotFound
	}
	writeJSON(w, code, res)
}

func (s *Server) listReservations(w http.ResponseWriter, r *http.Request) {
	list, err := s.net.Reservations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []charging.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) remoteStart(w http.ResponseWriter, r *http.Request) {
	var req charging.RemoteStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.net.RemoteStart(r.Context(), req)
	writeJSON(w, resultStatus(res.Success(), http.StatusCreated), res)
}

// stopBody is the optional payload of DELETE /api/sessions/{id}.
type stopBody struct {
	ReservationHandling charging.ReservationHandling `json:"reservationHandling"`
	ProviderID          string                       `json:"providerId,omitempty"`
}

func (s *Server) remoteStop(w http.ResponseWriter, r *http.Request) {
	var body stopBody
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	res := s.net.RemoteStop(r.Context(), charging.RemoteStopRequest{
		SessionID:           r.PathValue("id"),
		ReservationHandling: body.ReservationHandling,
		ProviderID:          body.ProviderID,
	})
	code := resultStatus(res.Success(), http.StatusOK)
	if res.Code == charging.StopUnknownSession {
		code = http.StatusNotFound
	}
	writeJSON(w, code, res)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	cs, err := s.net.Session(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, charging.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, cs)
	}
}

func (s *Server) activeSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.net.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []charging.ChargingSession{}
	}
	writeJSON(w, http.StatusOK, list)
}
