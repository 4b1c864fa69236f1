package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/render"
	"kiosk-engine/internal/session/domain"
	sessionservice "kiosk-engine/internal/session/service"
)

type startSessionRequest struct {
	KioskID string `json:"kioskId"`
}

type recordEventRequest struct {
	Category   string         `json:"category"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	OccurredAt *time.Time     `json:"occurredAt"`
}

type recordEventResponse struct {
	Accepted    bool  `json:"accepted"`
	Dropped     bool  `json:"dropped,omitempty"`
	TotalEvents int64 `json:"totalEvents,omitempty"`
}

type endSessionRequest struct {
	Outcome string     `json:"outcome"`
	EndedAt *time.Time `json:"endedAt"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.tracker.StartSession(r.Context(), req.KioskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, render.Session(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.tracker.GetSession(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, render.Session(sess))
}

// handleRecordEvent answers 202 for every well-formed event. Events for a closed session are
// dropped and reported with dropped=true rather than as an error, so late UI events never fail the kiosk.
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	in := sessionservice.EventInput{Category: req.Category, Action: req.Action, Details: req.Details}
	if req.OccurredAt != nil {
		in.OccurredAt = req.OccurredAt.UTC()
	}
	sess, err := s.tracker.RecordEvent(r.Context(), mux.Vars(r)["sessionId"], in)
	if errors.Is(err, apperr.ErrInvalidState) {
		s.writeJSON(w, http.StatusAccepted, recordEventResponse{Dropped: true})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, recordEventResponse{Accepted: true, TotalEvents: sess.TotalEvents})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	var endedAt time.Time
	if req.EndedAt != nil {
		endedAt = req.EndedAt.UTC()
	}
	sess, err := s.tracker.EndSession(r.Context(), mux.Vars(r)["sessionId"], domain.Outcome(req.Outcome), endedAt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, render.Session(sess))
}
