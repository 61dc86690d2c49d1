package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Service *Service
	log     *zap.Logger
}

func NewHandler(s *Service, log *zap.Logger) *Handler {
	return &Handler{Service: s, log: log}
}

// GetProfile serves GET /api/users/{uid}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	p, err := h.Service.GetProfile(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrInvalidUID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("load profile", zap.String("uid", uid), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load profile")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ProfileResponse{Profile: *p, DisplayName: p.DisplayName()})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
