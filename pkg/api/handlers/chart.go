package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/attune-app/attune/pkg/api/apierror"
	"github.com/attune-app/attune/pkg/chart"
	"github.com/attune-app/attune/pkg/store"
)

type bubbleResp struct {
	Label          string    `json:"label"`
	Kind           string    `json:"kind"`
	Category       string    `json:"category,omitempty"`
	Frequency      int       `json:"frequency"`
	Intensity      float64   `json:"intensity"`
	LastSeen       time.Time `json:"last_seen"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Radius         float64   `json:"radius"`
}

func toBubbleResp(b chart.Bubble) bubbleResp {
	return bubbleResp{
		Label:          b.Label,
		Kind:           string(b.Kind),
		Category:       b.Category,
		Frequency:      b.Frequency,
		Intensity:      b.Intensity,
		LastSeen:       b.LastSeen,
		ConversationID: b.ConversationID,
		Radius:         b.Radius,
	}
}

// ChartHandler serves GET /v1/chart: detected items sized as bubbles, flat or
// grouped per complex.
type ChartHandler struct {
	Store  store.Store
	Cache  *store.ComplexCache
	Logger *slog.Logger
	Now    func() time.Time
}

func (h ChartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	metric := chart.MetricFrequency
	switch m := strings.TrimSpace(r.URL.Query().Get("metric")); m {
	case "", string(chart.MetricFrequency):
	case string(chart.MetricIntensity):
		metric = chart.MetricIntensity
	case string(chart.MetricRecency):
		metric = chart.MetricRecency
	default:
		writeError(w, r, apierror.NewInvalidRequest("metric must be one of frequency|intensity|recency", "metric"))
		return
	}
	grouped := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("grouped")), "true")

	stored, err := h.Store.ListDetectedItems(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]chart.Item, 0, len(stored))
	for _, item := range stored {
		items = append(items, chart.Item{
			Label:          item.Label,
			Kind:           chart.Kind(item.Kind),
			Category:       item.Category,
			Frequency:      item.Frequency,
			Intensity:      item.Intensity,
			LastSeen:       item.LastSeen,
			ConversationID: item.ConversationID,
		})
	}
	items = chart.Merge(items)

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	cfg := chart.DefaultSizeConfig()

	if !grouped {
		bubbles := chart.Bubbles(items, metric, cfg, now)
		out := make([]bubbleResp, 0, len(bubbles))
		for _, b := range bubbles {
			out = append(out, toBubbleResp(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metric":  string(metric),
			"bubbles": out,
		})
		return
	}

	complexOf, complexName, err := h.complexLookup(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	groups := chart.GroupByComplex(items, metric, cfg, now, complexOf)
	type groupResp struct {
		ComplexID   string       `json:"complex_id,omitempty"`
		ComplexName string       `json:"complex_name,omitempty"`
		Bubbles     []bubbleResp `json:"bubbles"`
	}
	out := make([]groupResp, 0, len(groups))
	for _, g := range groups {
		bubbles := make([]bubbleResp, 0, len(g.Bubbles))
		for _, b := range g.Bubbles {
			bubbles = append(bubbles, toBubbleResp(b))
		}
		out = append(out, groupResp{
			ComplexID:   g.ComplexID,
			ComplexName: complexName(g.ComplexID),
			Bubbles:     bubbles,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metric": string(metric),
		"groups": out,
	})
}

// complexLookup builds the conversation-to-complex mapping used for grouping,
// preferring the prefetch cache for complex metadata.
func (h ChartHandler) complexLookup(r *http.Request, user string) (func(string) string, func(string) string, error) {
	conversations, err := h.Store.ListConversations(r.Context(), store.FindConversations{UserID: user})
	if err != nil {
		return nil, nil, err
	}
	byConversation := make(map[string]string, len(conversations))
	for _, c := range conversations {
		if c.ComplexID != "" {
			byConversation[c.ID] = c.ComplexID
		}
	}

	var complexes []*store.Complex
	cached := false
	if h.Cache != nil {
		complexes, cached = h.Cache.Get(user)
	}
	if !cached {
		complexes, err = h.Store.ListComplexes(r.Context(), user)
		if err != nil {
			return nil, nil, err
		}
		if h.Cache != nil {
			h.Cache.Put(user, complexes)
		}
	}
	names := make(map[string]string, len(complexes))
	for _, c := range complexes {
		names[c.ID] = c.Name
	}

	complexOf := func(conversationID string) string {
		return byConversation[conversationID]
	}
	complexName := func(complexID string) string {
		return names[complexID]
	}
	return complexOf, complexName, nil
}
