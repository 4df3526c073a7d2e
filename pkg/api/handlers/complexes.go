package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/attune-app/attune/pkg/api/apierror"
	"github.com/attune-app/attune/pkg/store"
)

type complexResp struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toComplexResp(c *store.Complex) complexResp {
	return complexResp{
		ID:          c.ID,
		UserID:      c.UserID,
		Name:        c.Name,
		Color:       c.Color,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// ComplexesHandler serves /v1/complexes and /v1/complexes/{id}. Mutations
// invalidate the per-user prefetch cache.
type ComplexesHandler struct {
	Store        store.Store
	Cache        *store.ComplexCache
	Logger       *slog.Logger
	MaxBodyBytes int64
}

func (h ComplexesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

func (h ComplexesHandler) list(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, cached := h.cachedList(user)
	if !cached {
		list, err = h.Store.ListComplexes(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if h.Cache != nil {
			h.Cache.Put(user, list)
		}
	}

	out := make([]complexResp, 0, len(list))
	for _, c := range list {
		out = append(out, toComplexResp(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"complexes": out, "cached": cached})
}

func (h ComplexesHandler) cachedList(user string) ([]*store.Complex, bool) {
	if h.Cache == nil {
		return nil, false
	}
	return h.Cache.Get(user)
}

func (h ComplexesHandler) create(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Color       string `json:"color"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, apierror.NewInvalidRequest("complex name is required", "name"))
		return
	}
	created, err := h.Store.CreateComplex(r.Context(), &store.Complex{
		UserID:      user,
		Name:        strings.TrimSpace(req.Name),
		Color:       strings.TrimSpace(req.Color),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Invalidate(user)
	}
	writeJSON(w, http.StatusCreated, toComplexResp(created))
}

func (h ComplexesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Store.GetComplex(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c.UserID != user {
		writeError(w, r, apierror.NewNotFound("complex not found"))
		return
	}
	writeJSON(w, http.StatusOK, toComplexResp(c))
}

func (h ComplexesHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.Store.GetComplex(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing.UserID != user {
		writeError(w, r, apierror.NewNotFound("complex not found"))
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Color       *string `json:"color"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Store.UpdateComplex(r.Context(), store.UpdateComplex{
		ID:          id,
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Invalidate(user)
	}
	writeJSON(w, http.StatusOK, toComplexResp(updated))
}

func (h ComplexesHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.Store.GetComplex(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing.UserID != user {
		writeError(w, r, apierror.NewNotFound("complex not found"))
		return
	}
	if err := h.Store.DeleteComplex(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Invalidate(user)
	}
	w.WriteHeader(http.StatusNoContent)
}
