package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/RichardoC/padchat/internal/chat"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/models"
	"github.com/RichardoC/padchat/internal/prefs"
	"github.com/RichardoC/padchat/internal/store"
	"go.uber.org/zap"
)

type Handler struct {
	store   *store.Store
	session *chat.Session
	gateway chat.Completer
	prefs   *prefs.Prefs
	logger  *zap.Logger
}

func NewHandler(s *store.Store, session *chat.Session, gateway chat.Completer, p *prefs.Prefs, logger *zap.Logger) *Handler {
	return &Handler{
		store:   s,
		session: session,
		gateway: gateway,
		prefs:   p,
		logger:  logger,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", h.HandleChat)
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/conversations", h.GetConversations)
	mux.HandleFunc("/api/conversations/select", h.SelectConversation)
	mux.HandleFunc("/api/conversations/delete", h.DeleteConversation)
	mux.HandleFunc("/api/conversations/update", h.UpdateConversation)
	mux.HandleFunc("/api/messages", h.GetMessages)
	mux.HandleFunc("/api/settings", h.Settings)
}

type ChatRequest struct {
	Message string           `json:"message"`
	History []models.Message `json:"history"`
	Token   string           `json:"token"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message"`
	Failed         bool            `json:"failed"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

type SettingsResponse struct {
	HasCredential bool   `json:"has_credential"`
	SidebarOpen   bool   `json:"sidebar_open"`
	Theme         string `json:"theme"`
}

type SettingsRequest struct {
	Credential  *string `json:"credential"`
	SidebarOpen *bool   `json:"sidebar_open"`
	Theme       *string `json:"theme"`
}

// HandleChat is the stateless completion endpoint: the caller supplies
// history and token, nothing is stored.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Message is required"})
		return
	}

	reply, err := h.gateway.Complete(r.Context(), req.Message, req.History, req.Token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, llm.ErrMissingCredential) {
			status = http.StatusBadRequest
		}
		h.logger.Error("Chat API error",
			zap.Error(err),
			zap.Stringer("kind", llm.KindOf(err)))
		h.writeJSON(w, status, ErrorResponse{Error: llm.Classify(err).Message})
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// HandleMessage sends content through the session into the current
// conversation and returns the assistant message that was appended.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	res, err := h.session.Send(r.Context(), req.Content)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, llm.ErrMissingCredential):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, chat.ErrBusy):
		h.writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, store.ErrConversationNotFound):
		h.writeJSON(w, http.StatusGone, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to send message", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	h.writeJSON(w, http.StatusOK, MessageResponse{
		ConversationID: res.ConversationID,
		Message:        &res.Reply,
		Failed:         res.Failed,
	})
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		conversations := h.store.Conversations()

		h.logger.Debug("Retrieved conversations",
			zap.Int("count", len(conversations)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))

		h.writeJSON(w, http.StatusOK, conversations)

	case http.MethodPost:
		h.writeJSON(w, http.StatusCreated, h.store.CreateConversation(r.Context()))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) SelectConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID := r.URL.Query().Get("conversation_id")
	if !h.store.Select(convID) {
		h.logger.Debug("Ignoring select of unknown conversation", zap.String("conversationID", convID))
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"current": h.store.CurrentID()})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversation, ok := h.store.Get(r.URL.Query().Get("conversation_id"))
	if !ok {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, conversation.Messages)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.store.Delete(r.Context(), r.URL.Query().Get("conversation_id"))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// blank titles are dropped silently
	conversation, _ := h.store.RenameConversation(r.Context(), r.URL.Query().Get("conversation_id"), req.Title)
	if conversation == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, conversation)
}

func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Theme != nil {
			if err := h.prefs.SetTheme(ctx, *req.Theme); err != nil {
				if errors.Is(err, prefs.ErrInvalidTheme) {
					h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
					return
				}
				h.logger.Warn("Failed to save theme", zap.Error(err))
			}
		}
		if req.SidebarOpen != nil {
			if err := h.prefs.SetSidebarOpen(ctx, *req.SidebarOpen); err != nil {
				h.logger.Warn("Failed to save sidebar state", zap.Error(err))
			}
		}
		if req.Credential != nil {
			if err := h.prefs.SetCredential(ctx, *req.Credential); err != nil {
				h.logger.Warn("Failed to save credential", zap.Error(err))
			}
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, SettingsResponse{
		HasCredential: h.prefs.Credential(ctx) != "",
		SidebarOpen:   h.prefs.SidebarOpen(ctx),
		Theme:         h.prefs.Theme(ctx),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
