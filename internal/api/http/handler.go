// Package http exposes the face service over a JSON/multipart HTTP API.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facelocker/facelocker-server/internal/logger"
	"github.com/facelocker/facelocker-server/internal/model"
)

// FaceService is the part of the face pipeline the API needs.
type FaceService interface {
	SaveUserImage(ctx context.Context, user string, data []byte) (string, error)
	TrainAll(ctx context.Context) (map[string]string, error)
	Recognize(ctx context.Context, data []byte) (model.Recognition, error)
	ListUsers(ctx context.Context) ([]string, error)
	ListModels(ctx context.Context) ([]model.ModelRef, error)
	DeleteUser(ctx context.Context, user string) (bool, error)
}

// maxUploadSize bounds a single image upload.
const maxUploadSize = 20 << 20

// Handler serves the HTTP endpoints.
type Handler struct {
	service FaceService
	logger  *logger.Logger
}

// NewHandler creates an API handler around the face service.
func NewHandler(service FaceService, l *logger.Logger) *Handler {
	return &Handler{service: service, logger: l}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDetail renders an error the way clients expect it.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// formFile reads the uploaded "file" multipart field.
func formFile(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	if user == "" {
		writeDetail(w, http.StatusBadRequest, "username required")
		return
	}

	data, err := formFile(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file field required")
		return
	}

	ref, err := h.service.SaveUserImage(r.Context(), user, data)
	if err != nil {
		h.logger.Error("failed to save user image", "user", user, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to save image")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"saved": ref})
}

func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.TrainAll(r.Context())
	if err != nil {
		h.logger.Error("training run failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "training failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "results": results})
}

func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	data, err := formFile(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file field required")
		return
	}

	rec, err := h.service.Recognize(r.Context(), data)
	if err != nil {
		h.logger.Error("recognition failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "recognition failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"users": users})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")

	ok, err := h.service.DeleteUser(r.Context(), user)
	if err != nil {
		h.logger.Error("failed to delete user", "user", user, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if !ok {
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": user})
}

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.ListModels(r.Context())
	if err != nil {
		h.logger.Error("failed to list models", "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	pairs := make([][2]string, 0, len(models))
	for _, m := range models {
		pairs = append(pairs, [2]string{m.User, m.Ref})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": pairs})
}
