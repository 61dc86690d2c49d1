package voucher

import (
	"encoding/json"
	"errors"
	"net/http"

	"admin-chat/internal/tree"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	repo *Repository
	log  *zap.Logger
}

func NewHandler(repo *Repository, log *zap.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		h.log.Error("list vouchers", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load vouchers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vouchers": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.repo.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Put serves PUT /api/vouchers/{code}. The code in the path wins over any
// code in the body.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	var v Voucher
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	v.Code = chi.URLParam(r, "code")
	if err := h.repo.Put(r.Context(), v); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidVoucher), errors.Is(err, tree.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("voucher store", zap.Error(err))
		writeError(w, http.StatusBadGateway, "voucher store unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
