package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	myMiddleware "admin-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxImageBytes = 16 << 20

type Handler struct {
	agg      *Aggregator
	repo     *Repository
	marker   *ReadMarker
	profiles ProfileSource
	uploader Uploader
	notifier Notifier
	log      *zap.Logger
}

func NewHandler(agg *Aggregator, repo *Repository, marker *ReadMarker, profiles ProfileSource,
	uploader Uploader, notifier Notifier, log *zap.Logger) *Handler {
	return &Handler{
		agg:      agg,
		repo:     repo,
		marker:   marker,
		profiles: profiles,
		uploader: uploader,
		notifier: notifier,
		log:      log,
	}
}

func (h *Handler) viewDeps() ViewDeps {
	return ViewDeps{
		Messages:   h.repo,
		Profiles:   h.profiles,
		Marker:     h.marker,
		Aggregator: h.agg,
		Log:        h.log,
	}
}

type chatListEntry struct {
	ChatListItem
	LastActivity string `json:"lastActivity"`
}

// ListChats serves GET /api/chats?q=
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	items, err := h.agg.LoadChatList(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": "failed to load chat list",
			"chats": []chatListEntry{},
		})
		return
	}

	items = FilterChatList(items, r.URL.Query().Get("q"))
	now := time.Now()
	out := make([]chatListEntry, len(items))
	for i, it := range items {
		out[i] = chatListEntry{ChatListItem: it, LastActivity: FormatTimestamp(it.LastMessageTimestamp, now)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

// GetMessages serves GET /api/chats/{id}/messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	counterpartyID := chi.URLParam(r, "id")
	msgs, err := h.repo.Messages(r.Context(), counterpartyID)
	if err != nil {
		h.log.Error("load messages", zap.String("counterparty", counterpartyID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// SendMessage serves POST /api/chats/{id}/messages. The body is a form with
// a text field and an optional image file.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	counterpartyID := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	var image ImageRef
	if file, _, err := r.FormFile("image"); err == nil {
		raw, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}
		image = BytesImage(raw)
	}

	gate := NewGate(h.uploader, h.repo, h.notifier, h.log)
	actor := myMiddleware.ActorFromContext(r.Context())
	msg, err := gate.Send(r.Context(), counterpartyID, actor, r.FormValue("text"), image)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUploadFailed), errors.Is(err, ErrWriteFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to send message")
	default:
		writeJSON(w, http.StatusCreated, msg)
	}
}

// MarkRead serves POST /api/chats/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	counterpartyID := chi.URLParam(r, "id")
	n, err := h.marker.MarkAsRead(r.Context(), counterpartyID)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"marked": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
