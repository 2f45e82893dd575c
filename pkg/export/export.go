// Package export writes EVSE status snapshots in formats suitable for
// spreadsheets and downstream tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"evse_id", "status", "admin_status", "timestamp"}

// WriteJSON writes the records to w as a JSON array.
func WriteJSON(w io.Writer, recs []charging.EVSEStatusRecord) error {
	if recs == nil {
		recs = []charging.EVSEStatusRecord{}
	}
	return json.NewEncoder(w).Encode(recs)
}

// WriteCSV writes the records to w in CSV format with a header row. Zero
// timestamps are left empty.
func WriteCSV(w io.Writer, recs []charging.EVSEStatusRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range recs {
		ts := ""
		if !r.Timestamp.IsZero() {
			ts = r.Timestamp.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{r.ID.String(), r.Status.String(), r.AdminStatus.String(), ts}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
