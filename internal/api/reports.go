package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"taller/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GET /api/reports/occupancy?month=YYYY-MM
func (s *Server) handleOccupancyReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	loc := s.booking.Location()
	month := time.Now().In(loc)
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := report.ParseMonth(raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "mes inválido; usa AAAA-MM")
			return
		}
		month = m
	}

	// buffered so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := s.reports.Monthly(r.Context(), month, &buf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.FileName(month)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
