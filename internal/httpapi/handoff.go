package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	handoffservice "kiosk-engine/internal/handoff/service"
	"kiosk-engine/internal/render"
)

// IdempotencyKeyHeader lets a phone retry an upload and get the original result.
const IdempotencyKeyHeader = "Idempotency-Key"

type createHandoffRequest struct {
	SlotIndex       *int   `json:"slotIndex"`
	ParentSessionID string `json:"parentSessionId"`
}

func (s *Server) handleCreateHandoff(w http.ResponseWriter, r *http.Request) {
	var req createHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.SlotIndex == nil {
		s.writeAPIError(w, http.StatusBadRequest, "slotIndex is required")
		return
	}
	issued, err := s.broker.CreateHandoff(r.Context(), *req.SlotIndex, req.ParentSessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body := render.Handoff(issued.Handoff, s.nowF())
	body["url"] = issued.URL
	s.writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleGetHandoff(w http.ResponseWriter, r *http.Request) {
	h, err := s.broker.GetHandoff(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, render.Handoff(h, s.nowF()))
}

func (s *Server) handleDeleteHandoff(w http.ResponseWriter, r *http.Request) {
	if err := s.broker.DeleteHandoff(r.Context(), mux.Vars(r)["token"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload takes the raw image as the request body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		s.writeAPIError(w, http.StatusUnsupportedMediaType, "body must be an image")
		return
	}
	if s.uploadMax > 0 && r.ContentLength > s.uploadMax {
		s.writeAPIError(w, http.StatusRequestEntityTooLarge, "image exceeds "+strconv.FormatInt(s.uploadMax, 10)+" bytes")
		return
	}
	body := r.Body
	if s.uploadMax > 0 {
		body = http.MaxBytesReader(w, r.Body, s.uploadMax)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeAPIError(w, http.StatusRequestEntityTooLarge, "image exceeds "+strconv.FormatInt(s.uploadMax, 10)+" bytes")
			return
		}
		s.writeAPIError(w, http.StatusBadRequest, "read body")
		return
	}
	h, err := s.broker.CompleteHandoff(r.Context(), mux.Vars(r)["token"], handoffservice.Upload{
		ContentType:    mediaType,
		Data:           data,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, render.Handoff(h, s.nowF()))
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.broker.GetHandoffImage(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		s.log.Debug().Err(err).Msg("write image")
	}
}
