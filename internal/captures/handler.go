package captures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/loam/pkg/auth"
	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/camera"
	"github.com/JaimeStill/loam/pkg/capture"
	"github.com/JaimeStill/loam/pkg/formatting"
	"github.com/JaimeStill/loam/pkg/handlers"
	"github.com/JaimeStill/loam/pkg/routes"
	"github.com/JaimeStill/loam/pkg/submission"
)

// Handler provides HTTP endpoints for capture sessions.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// NewHandler creates a Handler with the given system, logger and upload size limit.
func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "captures"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for capture session endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/captures",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
			{Method: "PUT", Pattern: "/{id}/mode", Handler: h.SelectMode},
			{Method: "PUT", Pattern: "/{id}/record", Handler: h.SetRecord},
			{Method: "POST", Pattern: "/{id}/file", Handler: h.SetFile},
			{Method: "POST", Pattern: "/{id}/validate", Handler: h.Validate},
			{Method: "POST", Pattern: "/{id}/submit", Handler: h.Submit},
		},
		Children: []routes.Group{
			{
				Prefix: "/{id}/camera",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/acquire", Handler: h.Acquire},
					{Method: "POST", Pattern: "/snapshot", Handler: h.Snapshot},
					{Method: "POST", Pattern: "/retake", Handler: h.Retake},
					{Method: "POST", Pattern: "/release", Handler: h.Release},
				},
			},
		},
	}
}

// Create opens a capture session in the selecting phase.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, ErrNoUser)
		return
	}

	s := h.sys.Create(user)
	handlers.RespondJSON(w, http.StatusCreated, s.View())
}

// Find returns the state of a capture session.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	handlers.RespondJSON(w, http.StatusOK, s.View())
}

// Delete leaves the capture session: the camera is released and any
// in-flight submission is discarded.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, ErrNoUser)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	if err := h.sys.Remove(user, id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SelectMode switches the capture mode.
func (h *Handler) SelectMode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.respond(w, s, s.Controller().SelectMode(mode))
}

// SetRecord merges raw field values into the manual record or CSV columns.
func (h *Handler) SetRecord(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	h.respond(w, s, s.Controller().SetFields(fields))
}

// SetFile attaches the multipart "file" part to the image or CSV mode.
func (h *Handler) SetFile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w (%s)", ErrFileTooLarge, formatting.FormatBytes(h.maxUploadSize, 0))
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	h.respond(w, s, s.Controller().SetFile(backend.File{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}))
}

// Acquire starts the live camera preview. An unavailable camera is not an
// HTTP failure: the returned state carries the unavailable flag and reason.
func (h *Handler) Acquire(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	err := s.Controller().AcquireCamera(r.Context())
	if err != nil && !errors.Is(err, camera.ErrCaptureUnavailable) {
		h.respond(w, s, err)
		return
	}
	if err != nil {
		h.logger.Info("camera acquire failed", "capture", s.ID, "error", err)
	}
	handlers.RespondJSON(w, http.StatusOK, s.View())
}

// Snapshot captures a still from the live preview.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	_, err := s.Controller().Snapshot(r.Context())
	h.respond(w, s, err)
}

// Retake discards the captured still and keeps the preview live.
func (h *Handler) Retake(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller().Retake())
}

// Release stops the live preview.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Controller().ReleaseCamera())
}

// Validate checks the active payload. An invalid payload returns 422 with
// every field error.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	v, err := s.Controller().Validate()
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	status := http.StatusOK
	if !v.Valid() {
		status = http.StatusUnprocessableEntity
	}
	handlers.RespondJSON(w, status, v)
}

// Submit validates and submits the active payload, then waits for the
// outcome. The optional wait query parameter bounds the wait; a submission
// still pending when it lapses returns 202.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if _, err := s.Submit(); err != nil {
		if errors.Is(err, submission.ErrNotValidated) {
			handlers.RespondJSON(w, http.StatusUnprocessableEntity, s.View())
			return
		}
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	o, err := s.Wait(ctx)
	if err != nil {
		if errors.Is(err, submission.ErrClosed) {
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}
		handlers.RespondJSON(w, http.StatusAccepted, s.View())
		return
	}

	h.logger.Info("capture submission completed", "capture", s.ID, "status", o.Status)
	handlers.RespondJSON(w, http.StatusOK, s.View())
}

func (h *Handler) respond(w http.ResponseWriter, s *Session, err error) {
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, s.View())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, ErrNoUser)
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return nil, false
	}

	s, err := h.sys.Find(user, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return nil, false
	}
	return s, true
}
