package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type heartbeatRequest struct {
	// ObservedAt is the kiosk's own clock reading; absent means now.
	ObservedAt *time.Time `json:"observedAt"`
}

type presenceResponse struct {
	KioskID string `json:"kioskId"`
	Status  string `json:"status"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	kioskID := mux.Vars(r)["kioskId"]
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	var observedAt time.Time
	if req.ObservedAt != nil {
		observedAt = req.ObservedAt.UTC()
	}
	if err := s.monitor.RecordHeartbeat(r.Context(), kioskID, observedAt); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	kioskID := mux.Vars(r)["kioskId"]
	st, err := s.monitor.Status(r.Context(), kioskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, presenceResponse{KioskID: kioskID, Status: string(st)})
}
