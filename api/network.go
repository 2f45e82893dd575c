package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
	"github.com/openchargingcloud/wwcp/pkg/export"
)

var errNotFound = errors.New("not found")

// jsonOptions reads ?expand, which defaults to true.
func jsonOptions(r *http.Request) (charging.JSONOptions, error) {
	opts := charging.DefaultJSONOptions
	if v := r.URL.Query().Get("expand"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("expand: %w", err)
		}
		opts.ExpandChildren = b
	}
	return opts, nil
}

// lookup parses the {id} path value and resolves the entity.
func lookup[ID any, E any](w http.ResponseWriter, r *http.Request, parse func(string) (ID, error), get func(ID) (E, bool)) (E, charging.JSONOptions, bool) {
	var zero E
	opts, err := jsonOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return zero, opts, false
	}
	id, err := parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return zero, opts, false
	}
	e, ok := get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s: %w", r.PathValue("id"), errNotFound))
		return zero, opts, false
	}
	return e, opts, true
}

func (s *Server) getNetwork(w http.ResponseWriter, r *http.Request) {
	opts, err := jsonOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.net.ToJSON(opts))
}

func (s *Server) getOperator(w http.ResponseWriter, r *http.Request) {
	if o, opts, ok := lookup(w, r, ids.ParseOperatorID, s.net.Operator); ok {
		writeJSON(w, http.StatusOK, o.ToJSON(opts))
	}
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	if p, opts, ok := lookup(w, r, ids.ParsePoolID, s.net.Pool); ok {
		writeJSON(w, http.StatusOK, p.ToJSON(opts))
	}
}

func (s *Server) getStation(w http.ResponseWriter, r *http.Request) {
	if st, opts, ok := lookup(w, r, ids.ParseStationID, s.net.Station); ok {
		writeJSON(w, http.StatusOK, st.ToJSON(opts))
	}
}

func (s *Server) getEVSE(w http.ResponseWriter, r *http.Request) {
	if e, opts, ok := lookup(w, r, ids.ParseEVSEID, s.net.EVSE); ok {
		writeJSON(w, http.StatusOK, e.ToJSON(opts))
	}
}

func (s *Server) getEVSEStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f charging.EVSEStatusFilter
	var err error
	if v := q.Get("operator"); v != "" {
		if f.Operator, err = ids.ParseOperatorID(v); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if v := q.Get("pool"); v != "" {
		if f.Pool, err = ids.ParsePoolID(v); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if v := q.Get("station"); v != "" {
		if f.Station, err = ids.ParseStationID(v); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if v := q.Get("status"); v != "" {
		st, err := status.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Status = &st
	}
	recs := s.net.EVSEStatus(f)
	switch q.Get("format") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := export.WriteJSON(w, recs); err != nil {
			s.log.Errorw("write evse status", map[string]any{"err": err})
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="evse-status.csv"`)
		if err := export.WriteCSV(w, recs); err != nil {
			s.log.Errorw("write evse status", map[string]any{"err": err})
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", q.Get("format")))
	}
}

// statusBody is the payload of the status update endpoints. A zero
// timestamp means now.
type statusBody[T any] struct {
	Status    T         `json:"status"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type statusUpdated struct {
	Changed bool `json:"changed"`
	Current any  `json:"current"`
}

func (s *Server) putStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := s.evseForUpdate(w, r)
	if !ok {
		return
	}
	var body statusBody[status.Status]
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	changed := e.SetStatus(r.Context(), body.Status, body.Timestamp)
	writeJSON(w, http.StatusOK, statusUpdated{Changed: changed, Current: e.Status()})
}

func (s *Server) putAdminStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := s.evseForUpdate(w, r)
	if !ok {
		return
	}
	var body statusBody[status.AdminStatus]
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	changed := e.SetAdminStatus(r.Context(), body.Status, body.Timestamp)
	writeJSON(w, http.StatusOK, statusUpdated{Changed: changed, Current: e.AdminStatus()})
}

func (s *Server) evseForUpdate(w http.ResponseWriter, r *http.Request) (*charging.EVSE, bool) {
	id, err := ids.ParseEVSEID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	e, ok := s.net.EVSE(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s: %w", id, errNotFound))
		return nil, false
	}
	return e, true
}
