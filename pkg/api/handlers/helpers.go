// Package handlers implements the HTTP API endpoints.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/attune-app/attune/pkg/api/apierror"
	"github.com/attune-app/attune/pkg/api/auth"
	"github.com/attune-app/attune/pkg/api/mw"
)

const defaultMaxBodyBytes = 1 << 20

// userID resolves the acting user, preferring the identity the auth
// middleware attached, then the X-User-ID header, then the user_id query
// parameter.
func userID(r *http.Request) (string, error) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.UserID != "" {
		return p.UserID, nil
	}
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if id == "" {
		return "", apierror.NewInvalidRequest("user id is required", "X-User-ID")
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.NewInvalidRequest(fmt.Sprintf("invalid request body: %v", err), "")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apiErr, status := apierror.FromError(err, reqID)
	apierror.Write(w, status, apiErr)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.Write(w, http.StatusMethodNotAllowed, &apierror.Error{
		Type:      apierror.ErrInvalidRequest,
		Message:   "method not allowed",
		RequestID: reqID,
	})
}
