package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attune-app/attune/pkg/detect"
	"github.com/attune-app/attune/pkg/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	conversations map[string]*store.Conversation
	complexes     map[string]*store.Complex
	items         map[string]*store.DetectedItem
	nextID        int

	listComplexCalls int
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[string]*store.Conversation),
		complexes:     make(map[string]*store.Complex),
		items:         make(map[string]*store.DetectedItem),
	}
}

func (m *memStore) newID() string {
	m.nextID++
	return fmt.Sprintf("id-%08d-%d", m.nextID, m.nextID)
}

func (m *memStore) CreateConversation(_ context.Context, c *store.Conversation) (*store.Conversation, error) {
	if !store.ValidID(c.ID) {
		c.ID = m.newID()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	copied := *c
	m.conversations[c.ID] = &copied
	return c, nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memStore) ListConversations(_ context.Context, find store.FindConversations) ([]*store.Conversation, error) {
	var out []*store.Conversation
	for _, c := range m.conversations {
		if c.UserID != find.UserID {
			continue
		}
		if find.ComplexID != nil && c.ComplexID != *find.ComplexID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) UpdateConversation(_ context.Context, update store.UpdateConversation) (*store.Conversation, error) {
	c, ok := m.conversations[update.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Title != nil {
		c.Title = *update.Title
	}
	if update.Summary != nil {
		c.Summary = *update.Summary
	}
	if update.ComplexID != nil {
		c.ComplexID = *update.ComplexID
	}
	c.UpdatedAt = time.Now()
	copied := *c
	return &copied, nil
}

func (m *memStore) DeleteConversation(_ context.Context, id string) error {
	delete(m.conversations, id)
	return nil
}

func (m *memStore) CreateComplex(_ context.Context, c *store.Complex) (*store.Complex, error) {
	if !store.ValidID(c.ID) {
		c.ID = m.newID()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	copied := *c
	m.complexes[c.ID] = &copied
	return c, nil
}

func (m *memStore) GetComplex(_ context.Context, id string) (*store.Complex, error) {
	c, ok := m.complexes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memStore) ListComplexes(_ context.Context, userID string) ([]*store.Complex, error) {
	m.listComplexCalls++
	var out []*store.Complex
	for _, c := range m.complexes {
		if c.UserID != userID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) UpdateComplex(_ context.Context, update store.UpdateComplex) (*store.Complex, error) {
	c, ok := m.complexes[update.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Color != nil {
		c.Color = *update.Color
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	copied := *c
	return &copied, nil
}

func (m *memStore) DeleteComplex(_ context.Context, id string) error {
	delete(m.complexes, id)
	return nil
}

func (m *memStore) UpsertDetectedItems(_ context.Context, items []store.DetectedItem) error {
	for _, item := range items {
		key := item.ConversationID + "/" + item.Kind + "/" + item.Label
		if existing, ok := m.items[key]; ok {
			existing.Frequency += item.Frequency
			if item.Intensity > existing.Intensity {
				existing.Intensity = item.Intensity
			}
			if item.LastSeen.After(existing.LastSeen) {
				existing.LastSeen = item.LastSeen
			}
			continue
		}
		copied := item
		m.items[key] = &copied
	}
	return nil
}

func (m *memStore) ListDetectedItems(_ context.Context, userID string) ([]*store.DetectedItem, error) {
	var out []*store.DetectedItem
	for _, item := range m.items {
		c, ok := m.conversations[item.ConversationID]
		if !ok || c.UserID != userID {
			continue
		}
		copied := *item
		out = append(out, &copied)
	}
	return out, nil
}

func newRequest(t *testing.T, method, target, user, body string) *http.Request {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		r.Header.Set("X-User-ID", user)
	}
	return r
}

// mux mirrors the server's conversation/complex/chart routing for tests.
func testMux(st store.Store, cache *store.ComplexCache) *http.ServeMux {
	mux := http.NewServeMux()
	conversations := ConversationsHandler{Store: st}
	mux.Handle("/v1/conversations", conversations)
	mux.Handle("/v1/conversations/{id}", conversations)
	mux.Handle("/v1/conversations/{id}/items", DetectedItemsHandler{Store: st})
	complexes := ComplexesHandler{Store: st, Cache: cache}
	mux.Handle("/v1/complexes", complexes)
	mux.Handle("/v1/complexes/{id}", complexes)
	mux.Handle("/v1/chart", ChartHandler{Store: st, Cache: cache})
	return mux
}

func TestConversations_CRUD(t *testing.T) {
	st := newMemStore()
	mux := testMux(st, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodPost, "/v1/conversations", "user-1", `{"title":"monday check-in"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", w.Code, w.Body.String())
	}
	var created conversationResp
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if !store.ValidID(created.ID) {
		t.Fatalf("created conversation got short id %q", created.ID)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodPatch, "/v1/conversations/"+created.ID, "user-1", `{"title":"renamed"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/conversations", "user-1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("list status %d", w.Code)
	}
	var listResp struct {
		Conversations []conversationResp `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listResp.Conversations) != 1 || listResp.Conversations[0].Title != "renamed" {
		t.Fatalf("unexpected list: %+v", listResp.Conversations)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodDelete, "/v1/conversations/"+created.ID, "user-1", ""))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", w.Code)
	}
}

func TestConversations_ScopedToUser(t *testing.T) {
	st := newMemStore()
	mux := testMux(st, nil)

	owned, _ := st.CreateConversation(context.Background(), &store.Conversation{UserID: "user-1", Title: "private"})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/conversations/"+owned.ID, "user-2", ""))
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign user should get 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/conversations", "", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing user id should be 400, got %d", w.Code)
	}
}

func TestDetectedItems_PersistAndChart(t *testing.T) {
	st := newMemStore()
	cache := store.NewComplexCache(time.Minute, nil)
	mux := testMux(st, cache)

	complexRow, _ := st.CreateComplex(context.Background(), &store.Complex{UserID: "user-1", Name: "work"})
	conv, _ := st.CreateConversation(context.Background(), &store.Conversation{UserID: "user-1", ComplexID: complexRow.ID})

	body := `{"items":[
		{"kind":"emotion","label":"dread","intensity":0.8},
		{"kind":"emotion","label":"dread","intensity":0.4},
		{"kind":"need","label":"rest","intensity":0.5}
	]}`
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/items", "user-1", body))
	if w.Code != http.StatusOK {
		t.Fatalf("items status %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/chart?metric=frequency", "user-1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("chart status %d: %s", w.Code, w.Body.String())
	}
	var flat struct {
		Bubbles []bubbleResp `json:"bubbles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &flat); err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	if len(flat.Bubbles) != 2 {
		t.Fatalf("expected 2 merged bubbles, got %d", len(flat.Bubbles))
	}
	byLabel := map[string]bubbleResp{}
	for _, b := range flat.Bubbles {
		byLabel[b.Label] = b
	}
	if byLabel["dread"].Frequency != 2 {
		t.Fatalf("duplicate labels should merge: %+v", byLabel["dread"])
	}
	if byLabel["dread"].Radius <= byLabel["rest"].Radius {
		t.Fatalf("more frequent item should be larger: dread=%v rest=%v",
			byLabel["dread"].Radius, byLabel["rest"].Radius)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/chart?grouped=true", "user-1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("grouped chart status %d", w.Code)
	}
	var grouped struct {
		Groups []struct {
			ComplexID   string       `json:"complex_id"`
			ComplexName string       `json:"complex_name"`
			Bubbles     []bubbleResp `json:"bubbles"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &grouped); err != nil {
		t.Fatalf("decode grouped chart: %v", err)
	}
	if len(grouped.Groups) != 1 || grouped.Groups[0].ComplexName != "work" {
		t.Fatalf("unexpected groups: %+v", grouped.Groups)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/chart?metric=velocity", "user-1", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown metric should be 400, got %d", w.Code)
	}
}

func TestComplexes_CacheInvalidation(t *testing.T) {
	st := newMemStore()
	cache := store.NewComplexCache(time.Minute, nil)
	mux := testMux(st, cache)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodPost, "/v1/complexes", "user-1", `{"name":"family"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", w.Code, w.Body.String())
	}
	var created complexResp
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	// First list hits the store and fills the cache; second is served from it.
	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/complexes", "user-1", ""))
		if w.Code != http.StatusOK {
			t.Fatalf("list %d status %d", i, w.Code)
		}
	}
	if st.listComplexCalls != 1 {
		t.Fatalf("expected 1 store list call, got %d", st.listComplexCalls)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodPatch, "/v1/complexes/"+created.ID, "user-1", `{"name":"family of origin"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/complexes", "user-1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("list status %d", w.Code)
	}
	if st.listComplexCalls != 2 {
		t.Fatalf("mutation should invalidate cache, store calls=%d", st.listComplexCalls)
	}
	var listResp struct {
		Complexes []complexResp `json:"complexes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listResp.Complexes) != 1 || listResp.Complexes[0].Name != "family of origin" {
		t.Fatalf("unexpected complexes: %+v", listResp.Complexes)
	}
}

type stubPipeline struct {
	result   *detect.Result
	err      error
	lastText string
}

func (p *stubPipeline) AddMessage(_ context.Context, text string) (*detect.Result, error) {
	p.lastText = text
	return p.result, p.err
}

func TestClassify(t *testing.T) {
	pipeline := &stubPipeline{result: &detect.Result{
		Emotions: []detect.Item{{Label: "overwhelm", Intensity: 0.7}},
		Needs:    []detect.Item{{Label: "rest", Intensity: 0.5}},
	}}
	h := ClassifyHandler{Detector: pipeline}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(t, http.MethodPost, "/v1/classify", "user-1", `{"text":"everything is too much"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("classify status %d: %s", w.Code, w.Body.String())
	}
	if pipeline.lastText != "everything is too much" {
		t.Fatalf("pipeline got %q", pipeline.lastText)
	}
	var result detect.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode classify: %v", err)
	}
	if len(result.Emotions) != 1 || result.Emotions[0].Label != "overwhelm" || len(result.Needs) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(t, http.MethodPost, "/v1/classify", "user-1", `{"text":"   "}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank text should be 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(t, http.MethodGet, "/v1/classify", "user-1", ""))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET should be 405, got %d", w.Code)
	}
}

func TestClassify_UnconfiguredReturns503(t *testing.T) {
	w := httptest.NewRecorder()
	ClassifyHandler{}.ServeHTTP(w, newRequest(t, http.MethodPost, "/v1/classify", "user-1", `{"text":"hello"}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing detector should be 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status %d", w.Code)
	}

	w = httptest.NewRecorder()
	ReadyHandler{}.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("empty config should not be ready, got %d", w.Code)
	}
}
