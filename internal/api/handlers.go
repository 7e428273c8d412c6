package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/store"
)

type APIHandler struct {
	repo  *core.Repository
	chats *core.ChatService
	list  *core.ConversationList
}

func NewAPIHandler(repo *core.Repository, chats *core.ChatService, list *core.ConversationList) *APIHandler {
	return &APIHandler{repo: repo, chats: chats, list: list}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Conversation is the rolled-back conversation after a failed send.
	Conversation *ConversationResponse `json:"conversation,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ConversationResponse is a conversation plus its send state.
type ConversationResponse struct {
	store.Conversation
	Status string `json:"status"`
	// Error is the localized text of the last failed send.
	Error string `json:"error,omitempty"`
}

func (h *APIHandler) conversationResponse(c store.Conversation) *ConversationResponse {
	st := h.chats.Status(c.ID)
	return &ConversationResponse{Conversation: c, Status: st.State.String(), Error: st.Error}
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	Status       string    `json:"status"`
	// ContainsResults is set when a search term matched a message body.
	ContainsResults bool `json:"containsResults"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	hits := h.list.Hits(r.URL.Query().Get("q"))
	out := make([]ConversationSummary, 0, len(hits))
	for _, hit := range hits {
		c := hit.Conversation
		out = append(out, ConversationSummary{
			ID:              c.ID,
			Title:           c.Title,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
			MessageCount:    len(c.Messages),
			Status:          h.chats.Status(c.ID).State.String(),
			ContainsResults: hit.MessageMatch,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := h.list.New(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error creating conversation")
		writeError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}
	conv, _ := h.repo.Get(id)
	writeJSON(w, http.StatusCreated, h.conversationResponse(conv))
}

func (h *APIHandler) GetActiveHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.repo.Active()
	if !ok {
		writeError(w, http.StatusNotFound, "No active conversation")
		return
	}
	conv, ok := h.repo.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "No active conversation")
		return
	}
	writeJSON(w, http.StatusOK, h.conversationResponse(conv))
}

type SelectRequest struct {
	ID string `json:"id"`
}

func (h *APIHandler) SelectActiveHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.list.Select(req.ID); err != nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	conv, _ := h.repo.Get(req.ID)
	writeJSON(w, http.StatusOK, h.conversationResponse(conv))
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.repo.Get(chi.URLParam(r, "conversationID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h.conversationResponse(conv))
}

type RenameRequest struct {
	Title *string `json:"title"`
}

func (h *APIHandler) RenameConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	var req RenameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Title == nil {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if _, ok := h.repo.Get(id); !ok {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	err := h.repo.Update(r.Context(), id, core.ConversationUpdate{Title: req.Title})
	switch {
	case errors.Is(err, core.ErrEmptyTitle):
		writeError(w, http.StatusBadRequest, "Title cannot be empty")
		return
	case err != nil:
		log.Error().Err(err).Str("conversation", id).Msg("Error renaming conversation")
		writeError(w, http.StatusInternalServerError, "Failed to rename conversation")
		return
	}
	conv, _ := h.repo.Get(id)
	writeJSON(w, http.StatusOK, h.conversationResponse(conv))
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := h.list.Delete(r.Context(), id); err != nil {
		log.Error().Err(err).Str("conversation", id).Msg("Error deleting conversation")
		writeError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

type PostMessageResponse struct {
	Conversation *ConversationResponse `json:"conversation"`
	Reply        *store.Message        `json:"reply"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	mode := store.ModeGeneral
	if strings.TrimSpace(req.Mode) != "" {
		parsed, err := store.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	// The reply belongs to the conversation even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.chats.Send(ctx, id, req.Content, mode)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, PostMessageResponse{
			Conversation: h.conversationResponse(res.Conversation),
			Reply:        res.Reply,
		})
	case errors.Is(err, core.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Message content cannot be empty")
	case errors.Is(err, core.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrConversationNotFound), res.Dropped:
		writeError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, core.ErrSendInFlight):
		writeError(w, http.StatusConflict, "A message is already being sent in this conversation")
	case res.ErrorText != "":
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:        res.ErrorText,
			Code:         errorCode(err),
			Conversation: h.conversationResponse(res.Conversation),
		})
	default:
		log.Error().Err(err).Str("conversation", id).Msg("Error posting message")
		writeError(w, http.StatusInternalServerError, "Failed to post message")
	}
}

func errorCode(err error) string {
	if kind := core.ErrorKind(err); kind != "" {
		return kind
	}
	return "send_failed"
}
