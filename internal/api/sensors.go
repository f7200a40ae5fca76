package api

import (
	"net/http"

	"github.com/banshee-data/anygrow.bridge/internal/db"
	"github.com/banshee-data/anygrow.bridge/internal/httputil"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/units"
)

type readingsResponse struct {
	Count int                `json:"count"`
	Data  []db.StoredReading `json:"data"`
}

// temperatureUnits reads the optional units parameter. Readings are stored
// in Celsius.
func temperatureUnits(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return units.Celsius, true
	}
	if !units.IsValid(u) {
		return "", false
	}
	return units.Normalise(u), true
}

// listReadings serves GET /api/sensors?hours=24&limit=2000[&units=fahrenheit].
func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	httputil.AllowAnyOrigin(w)
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tempUnits, ok := temperatureUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid units; valid options: "+units.GetValidUnitsString())
		return
	}

	hours := httputil.IntParam(r, "hours", DefaultQueryHours)
	limit := httputil.IntParam(r, "limit", DefaultQueryLimit)
	rows, err := s.db.Readings(hours, limit)
	if err != nil {
		monitoring.Logf("Error querying readings: %v", err)
		httputil.InternalServerError(w, "failed to query readings")
		return
	}
	if tempUnits != units.Celsius {
		for i := range rows {
			rows[i].Temperature = units.ConvertTemperature(rows[i].Temperature, tempUnits)
		}
	}
	httputil.WriteJSONOK(w, readingsResponse{Count: len(rows), Data: rows})
}

type summaryResponse struct {
	Hours   int        `json:"hours"`
	Count   int        `json:"count"`
	Summary db.Summary `json:"summary"`
}

// showSummary serves GET /api/sensors/summary?hours=24.
func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	httputil.AllowAnyOrigin(w)
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	hours, _ := db.ClampQuery(httputil.IntParam(r, "hours", DefaultQueryHours), db.MaxQueryLimit)
	summary, count, err := s.db.WindowSummary(hours)
	if err != nil {
		monitoring.Logf("Error summarising readings: %v", err)
		httputil.InternalServerError(w, "failed to query readings")
		return
	}
	httputil.WriteJSONOK(w, summaryResponse{Hours: hours, Count: count, Summary: summary})
}

// showStatus serves GET /api/status.
func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	httputil.AllowAnyOrigin(w)
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.bridge.Status())
}
