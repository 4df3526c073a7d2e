package apierror

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/attune-app/attune/pkg/store"
)

func TestFromError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   Type
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ErrAPI},
		{"cancelled", context.Canceled, http.StatusRequestTimeout, ErrAPI},
		{"invalid", NewInvalidRequest("bad field", "field"), http.StatusBadRequest, ErrInvalidRequest},
		{"not found api", NewNotFound("gone"), http.StatusNotFound, ErrNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound, ErrNotFound},
		{"wrapped store not found", fmt.Errorf("load: %w", store.ErrNotFound), http.StatusNotFound, ErrNotFound},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError, ErrAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr, status := FromError(tt.err, "req_1")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if apiErr.Type != tt.wantType {
				t.Fatalf("type = %q, want %q", apiErr.Type, tt.wantType)
			}
			if apiErr.RequestID != "req_1" {
				t.Fatalf("request id not attached: %+v", apiErr)
			}
		})
	}
}

func TestFromError_DoesNotLeakInternalDetails(t *testing.T) {
	apiErr, _ := FromError(fmt.Errorf("pq: password authentication failed for user"), "")
	if apiErr.Message != "internal error" {
		t.Fatalf("internal details leaked: %q", apiErr.Message)
	}
}
