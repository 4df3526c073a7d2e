package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/attune-app/attune/pkg/api/apierror"
	"github.com/attune-app/attune/pkg/api/mw"
	"github.com/attune-app/attune/pkg/detect"
)

// ClassifyHandler serves POST /v1/classify: runs the detection pipeline over
// one message and returns the detected emotions, parts and needs. Nothing is
// persisted; callers store results via the conversation items endpoint.
type ClassifyHandler struct {
	Detector     detect.Pipeline
	Logger       *slog.Logger
	MaxBodyBytes int64
}

type classifyReq struct {
	Text string `json:"text"`
}

func (h ClassifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if h.Detector == nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		apierror.Write(w, http.StatusServiceUnavailable, &apierror.Error{
			Type:      apierror.ErrAPI,
			Message:   "detection is not configured",
			Code:      "detect_unavailable",
			RequestID: reqID,
		})
		return
	}

	var req classifyReq
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, apierror.NewInvalidRequest("text is required", "text"))
		return
	}

	result, err := h.Detector.AddMessage(r.Context(), req.Text)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("classification failed", "error", err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
