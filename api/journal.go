package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/journal"
)

// queryJournal serves GET /api/journal?entity=&kind=&type=&from=&to=&limit=.
// Times are RFC 3339.
func (s *Server) queryJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	q, err := journalQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := s.journal.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func journalQuery(r *http.Request) (journal.Query, error) {
	v := r.URL.Query()
	q := journal.Query{
		EntityID: v.Get("entity"),
		Kind:     charging.Kind(v.Get("kind")),
		Type:     charging.ChangeType(v.Get("type")),
	}
	var err error
	if s := v.Get("from"); s != "" {
		if q.From, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("from: %w", err)
		}
	}
	if s := v.Get("to"); s != "" {
		if q.To, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("to: %w", err)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("limit: invalid value %q", s)
		}
	}
	return q, nil
}
