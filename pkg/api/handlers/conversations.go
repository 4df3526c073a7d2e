package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/attune-app/attune/pkg/api/apierror"
	"github.com/attune-app/attune/pkg/store"
)

type conversationResp struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	ComplexID string    `json:"complex_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toConversationResp(c *store.Conversation) conversationResp {
	return conversationResp{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		Summary:   c.Summary,
		ComplexID: c.ComplexID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ConversationsHandler serves /v1/conversations and /v1/conversations/{id}.
type ConversationsHandler struct {
	Store        store.Store
	Logger       *slog.Logger
	MaxBodyBytes int64
}

func (h ConversationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			methodNotAllowed(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPatch:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		methodNotAllowed(w, r)
	}
}

func (h ConversationsHandler) list(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	find := store.FindConversations{UserID: user}
	if v := strings.TrimSpace(r.URL.Query().Get("complex_id")); v != "" {
		find.ComplexID = &v
	}
	list, err := h.Store.ListConversations(r.Context(), find)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]conversationResp, 0, len(list))
	for _, c := range list {
		out = append(out, toConversationResp(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (h ConversationsHandler) create(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Title     string `json:"title"`
		Summary   string `json:"summary"`
		ComplexID string `json:"complex_id"`
	}
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Store.CreateConversation(r.Context(), &store.Conversation{
		UserID:    user,
		Title:     strings.TrimSpace(req.Title),
		Summary:   strings.TrimSpace(req.Summary),
		ComplexID: strings.TrimSpace(req.ComplexID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationResp(created))
}

func (h ConversationsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c.UserID != user {
		writeError(w, r, apierror.NewNotFound("conversation not found"))
		return
	}
	writeJSON(w, http.StatusOK, toConversationResp(c))
}

func (h ConversationsHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing.UserID != user {
		writeError(w, r, apierror.NewNotFound("conversation not found"))
		return
	}
	var req struct {
		Title     *string `json:"title"`
		Summary   *string `json:"summary"`
		ComplexID *string `json:"complex_id"`
	}
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Store.UpdateConversation(r.Context(), store.UpdateConversation{
		ID:        id,
		Title:     req.Title,
		Summary:   req.Summary,
		ComplexID: req.ComplexID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResp(updated))
}

func (h ConversationsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing.UserID != user {
		writeError(w, r, apierror.NewNotFound("conversation not found"))
		return
	}
	if err := h.Store.DeleteConversation(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DetectedItemsHandler serves POST /v1/conversations/{id}/items, persisting
// detection results for a conversation.
type DetectedItemsHandler struct {
	Store        store.Store
	Logger       *slog.Logger
	MaxBodyBytes int64
	Now          func() time.Time
}

func (h DetectedItemsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	conversation, err := h.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if conversation.UserID != user {
		writeError(w, r, apierror.NewNotFound("conversation not found"))
		return
	}

	var req struct {
		Items []struct {
			Kind      string  `json:"kind"`
			Label     string  `json:"label"`
			Category  string  `json:"category"`
			Frequency int     `json:"frequency"`
			Intensity float64 `json:"intensity"`
		} `json:"items"`
	}
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	items := make([]store.DetectedItem, 0, len(req.Items))
	for _, item := range req.Items {
		label := strings.TrimSpace(item.Label)
		kind := strings.TrimSpace(item.Kind)
		if label == "" || kind == "" {
			writeError(w, r, apierror.NewInvalidRequest("item kind and label are required", "items"))
			return
		}
		frequency := item.Frequency
		if frequency <= 0 {
			frequency = 1
		}
		items = append(items, store.DetectedItem{
			ConversationID: id,
			Kind:           kind,
			Label:          label,
			Category:       strings.TrimSpace(item.Category),
			Frequency:      frequency,
			Intensity:      item.Intensity,
			LastSeen:       now,
		})
	}
	if err := h.Store.UpsertDetectedItems(r.Context(), items); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persisted": len(items)})
}
