package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/banshee-data/anygrow.bridge/internal/httputil"
	"github.com/banshee-data/anygrow.bridge/internal/ledtimer"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

const maxBodySize = 64 * 1024

// setLED serves POST /api/led with form value mode=Off|On|Mood.
func (s *Server) setLED(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	modeText := r.FormValue("mode")
	mode, err := protocol.ParseMode(modeText)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.bridge.Router().Route(string(mode)); err != nil {
		monitoring.Logf("Error sending LED command: %v", err)
		httputil.InternalServerError(w, "failed to send LED command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"mode": string(mode)})
}

type ledTimerResponse struct {
	Profile  *ledtimer.Profile `json:"profile"`
	LastMode string            `json:"last_mode,omitempty"`
}

// handleLEDTimer serves GET and PUT /api/led/timer. A PUT profile is saved
// and survives restarts.
func (s *Server) handleLEDTimer(w http.ResponseWriter, r *http.Request) {
	if s.timer == nil {
		httputil.WriteJSONError(w, http.StatusConflict, "LED timer is not running")
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var p ledtimer.Profile
		if err := decodeBody(r, &p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := p.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.db.SaveLEDTimerProfile(&p); err != nil {
			monitoring.Logf("Error saving LED timer profile: %v", err)
			httputil.InternalServerError(w, "failed to save LED timer profile")
			return
		}
		if err := s.timer.SetProfile(&p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.timer.Check()
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ledTimerResponse{Profile: s.timer.Profile(), LastMode: string(s.timer.LastMode())})
}

// listAlarms serves GET /api/alarms?hours=24&limit=2000, newest first.
func (s *Server) listAlarms(w http.ResponseWriter, r *http.Request) {
	httputil.AllowAnyOrigin(w)
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	hours := httputil.IntParam(r, "hours", DefaultQueryHours)
	limit := httputil.IntParam(r, "limit", DefaultQueryLimit)
	alarms, err := s.db.RecentAlarms(hours, limit)
	if err != nil {
		monitoring.Logf("Error querying alarms: %v", err)
		httputil.InternalServerError(w, "failed to query alarms")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"count": len(alarms), "data": alarms})
}

// resetAlarms serves POST /api/alarms/reset.
func (s *Server) resetAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	ev := s.bridge.Alarms()
	if ev == nil {
		httputil.WriteJSONError(w, http.StatusConflict, "alarms are disabled")
		return
	}
	ev.Reset()
	monitoring.Logf("alarm flags cleared by %s", r.RemoteAddr)
	httputil.WriteJSONOK(w, map[string]any{"armed": ev.Armed()})
}

// handleThresholds serves GET and PUT /api/alarms/thresholds.
func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	ev := s.bridge.Alarms()
	if ev == nil {
		httputil.WriteJSONError(w, http.StatusConflict, "alarms are disabled")
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		th := ev.Thresholds()
		if err := decodeBody(r, &th); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := ev.SetThresholds(th); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ev.Thresholds())
}

// decodeBody decodes a JSON request body over v, rejecting unknown keys.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

