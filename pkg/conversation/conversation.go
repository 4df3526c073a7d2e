// Package conversation turns realtime voice transport callbacks into an
// ordered, duplicate-free conversation message list.
//
// The engine tracks three coarse UI states (idle, listening, responding) plus
// the short-lived processing window between the end of a recording and its
// final transcript. All transitions are driven by transport callbacks; there
// is no polling.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attune-app/attune/pkg/detect"
)

// State is the coarse conversation state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	default:
		return "idle"
	}
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn or an in-progress placeholder.
//
// A message is created as a placeholder when recording starts or an assistant
// response begins, mutated in place as transcript or streaming text arrives,
// and removed only when a recording yields an empty transcript or times out.
type Message struct {
	ID         string
	Role       Role
	Text       string
	SessionID  string
	Recording  bool
	Processing bool
	Thinking   bool
}

func (m Message) placeholder() bool {
	return m.Recording || m.Processing || m.Thinking
}

// Sink receives engine notifications. Implementations must not call back
// into the engine; callbacks run with internal state already updated.
type Sink interface {
	MessageAdded(msg Message)
	MessageUpdated(msg Message)
	MessageRemoved(id string)
	StateChanged(state State)
	PartialTranscript(text string)
	InsightsChanged(insights Insights)
	Alert(message string)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) MessageAdded(Message)     {}
func (NopSink) MessageUpdated(Message)   {}
func (NopSink) MessageRemoved(string)    {}
func (NopSink) StateChanged(State)       {}
func (NopSink) PartialTranscript(string) {}
func (NopSink) InsightsChanged(Insights) {}
func (NopSink) Alert(string)             {}

// Config bounds the engine's timers.
type Config struct {
	// TranscriptTimeout removes a stuck processing placeholder when no final
	// transcript arrives after the recording stopped.
	TranscriptTimeout time.Duration
	// DetectTimeout bounds a single detection-pipeline call.
	DetectTimeout time.Duration
}

// Dependencies wires an Engine. Sink is required; everything else defaults.
type Dependencies struct {
	Sink     Sink
	Detector detect.Pipeline
	Logger   *slog.Logger
	NewID    func() string
	Now      func() time.Time
	Config   Config
}

// Engine is the conversation/session state machine.
type Engine struct {
	mu sync.Mutex

	sink     Sink
	detector detect.Pipeline
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
	cfg      Config

	messages []Message
	state    State

	// sessionID is the current turn token; minted when the user begins
	// speaking or typing, retired when the response completes.
	sessionID        string
	committedSession string
	lastUserText     string
	partial          string

	recordingID string
	assistantID string

	// pendingAssistant holds an assistant placeholder that arrived before the
	// session's user message was committed. It is flushed on commit so an
	// assistant message never renders ahead of its user message.
	pendingAssistant *Message

	fallback  *time.Timer
	detectSeq int64
	insights  Insights
	closing   bool

	detectWG sync.WaitGroup
}

const defaultTranscriptTimeout = 3 * time.Second

// New builds an Engine from its dependencies.
func New(deps Dependencies) *Engine {
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.TranscriptTimeout <= 0 {
		deps.Config.TranscriptTimeout = defaultTranscriptTimeout
	}
	if deps.Config.DetectTimeout <= 0 {
		deps.Config.DetectTimeout = 15 * time.Second
	}
	return &Engine{
		sink:     deps.Sink,
		detector: deps.Detector,
		logger:   deps.Logger,
		newID:    deps.NewID,
		now:      deps.Now,
		cfg:      deps.Config,
		state:    StateIdle,
	}
}

// State returns the current coarse state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Messages returns a snapshot of the rendered message list.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Insights returns the current detection aggregate.
func (e *Engine) Insights() Insights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insights.snapshot()
}

// OnListeningStart opens a new session and inserts a recording placeholder.
func (e *Engine) OnListeningStart() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopFallbackLocked()

	// At most one outstanding recording placeholder: a restart replaces it.
	if e.recordingID != "" {
		e.removeMessageLocked(e.recordingID)
		e.recordingID = ""
	}

	e.detachAssistantLocked()
	e.sessionID = e.newID()
	e.committedSession = ""
	e.partial = ""

	msg := Message{
		ID:        e.newID(),
		Role:      RoleUser,
		SessionID: e.sessionID,
		Recording: true,
	}
	e.recordingID = msg.ID
	e.messages = append(e.messages, msg)
	e.sink.MessageAdded(msg)
	e.setStateLocked(StateListening)
}

// OnListeningStop marks the recording placeholder as processing and arms the
// fallback timer that guards against silently failed recordings.
func (e *Engine) OnListeningStop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recordingID == "" {
		return
	}

	if msg, ok := e.updateMessageLocked(e.recordingID, func(m *Message) {
		m.Recording = false
		m.Processing = true
	}); ok {
		e.sink.MessageUpdated(msg)
	}
	e.setStateLocked(StateProcessing)

	e.stopFallbackLocked()
	session := e.sessionID
	e.fallback = time.AfterFunc(e.cfg.TranscriptTimeout, func() {
		e.onTranscriptTimeout(session)
	})
}

func (e *Engine) onTranscriptTimeout(session string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A transcript for this session already landed, or a new turn started.
	if session != e.sessionID || e.recordingID == "" || e.committedSession == e.sessionID {
		return
	}
	e.logger.Warn("no transcript within timeout, discarding recording", "session_id", session)
	e.removeMessageLocked(e.recordingID)
	e.resetTurnLocked()
}

// OnTranscript applies a partial or final transcript for the active session.
func (e *Engine) OnTranscript(text string, isFinal bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sessionID == "" {
		return
	}

	if !isFinal {
		e.partial = text
		e.sink.PartialTranscript(text)
		return
	}

	e.stopFallbackLocked()
	e.partial = ""

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Empty recording is a no-op turn.
		if e.recordingID != "" {
			e.removeMessageLocked(e.recordingID)
		}
		e.resetTurnLocked()
		return
	}

	if trimmed == e.lastUserText && e.lastUserText != "" {
		// Duplicate delivery from the transport: keep the earlier message but
		// still open the gate so this session's reply may render.
		if e.recordingID != "" {
			e.removeMessageLocked(e.recordingID)
			e.recordingID = ""
		}
		e.commitSessionLocked()
		return
	}

	if e.recordingID != "" {
		if msg, ok := e.updateMessageLocked(e.recordingID, func(m *Message) {
			m.Recording = false
			m.Processing = false
			m.Text = trimmed
		}); ok {
			e.sink.MessageUpdated(msg)
		}
		e.recordingID = ""
	} else {
		msg := Message{
			ID:        e.newID(),
			Role:      RoleUser,
			Text:      trimmed,
			SessionID: e.sessionID,
		}
		e.messages = append(e.messages, msg)
		e.sink.MessageAdded(msg)
	}

	e.lastUserText = trimmed
	e.commitSessionLocked()
	e.dispatchDetectionLocked(trimmed)
}

// SubmitText records a typed user message, opening a fresh session for it.
func (e *Engine) SubmitText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	if trimmed == e.lastUserText && e.lastUserText != "" {
		return
	}

	e.stopFallbackLocked()
	if e.recordingID != "" {
		e.removeMessageLocked(e.recordingID)
		e.recordingID = ""
	}

	e.detachAssistantLocked()
	e.sessionID = e.newID()
	e.committedSession = ""
	msg := Message{
		ID:        e.newID(),
		Role:      RoleUser,
		Text:      trimmed,
		SessionID: e.sessionID,
	}
	e.messages = append(e.messages, msg)
	e.sink.MessageAdded(msg)

	e.lastUserText = trimmed
	e.commitSessionLocked()
	e.dispatchDetectionLocked(trimmed)
}

// detachAssistantLocked settles the previous turn's assistant message when a
// new turn preempts it. An empty placeholder is removed; one that already
// carries text is finalized in place so later response events cannot touch it.
func (e *Engine) detachAssistantLocked() {
	if e.assistantID != "" {
		if msg, ok := e.messageLocked(e.assistantID); ok {
			switch {
			case msg.placeholder() && strings.TrimSpace(msg.Text) == "":
				e.removeMessageLocked(e.assistantID)
			case msg.Thinking:
				if updated, ok := e.updateMessageLocked(e.assistantID, func(m *Message) {
					m.Thinking = false
				}); ok {
					e.sink.MessageUpdated(updated)
				}
			}
		}
		e.assistantID = ""
	}
	e.pendingAssistant = nil
}

// commitSessionLocked opens the gate that allows this session's assistant
// reply to render, flushing any reply events that raced ahead of the
// transcript.
func (e *Engine) commitSessionLocked() {
	e.committedSession = e.sessionID
	e.setStateLocked(StateResponding)
	if e.pendingAssistant != nil {
		pending := *e.pendingAssistant
		e.pendingAssistant = nil
		e.assistantID = pending.ID
		e.messages = append(e.messages, pending)
		e.sink.MessageAdded(pending)
	}
}

// OnResponseStart creates an assistant placeholder keyed by the response id.
func (e *Engine) OnResponseStart(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sessionID == "" {
		return
	}
	// At most one assistant placeholder per session.
	if e.assistantID != "" || e.pendingAssistant != nil {
		return
	}

	id = strings.TrimSpace(id)
	if id == "" {
		id = e.newID()
	}
	if _, exists := e.messageLocked(id); exists {
		// Redelivered response id; reusing it would shadow the earlier message.
		id = e.newID()
	}
	msg := Message{
		ID:        id,
		Role:      RoleAssistant,
		SessionID: e.sessionID,
		Thinking:  true,
	}

	if e.committedSession != e.sessionID {
		// The user message has not been committed yet: hold the reply until
		// the transcript lands so display order is preserved.
		e.pendingAssistant = &msg
		return
	}

	e.assistantID = msg.ID
	e.messages = append(e.messages, msg)
	e.sink.MessageAdded(msg)
	e.setStateLocked(StateResponding)
}

// OnResponseStreaming overwrites the assistant placeholder with the latest
// cumulative text.
func (e *Engine) OnResponseStreaming(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyAssistantTextLocked(text)
}

// OnResponse finalizes the assistant message with the complete text, so a
// streaming cutoff never truncates the trailing words.
func (e *Engine) OnResponse(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyAssistantTextLocked(text)
}

func (e *Engine) applyAssistantTextLocked(text string) {
	if e.pendingAssistant != nil {
		e.pendingAssistant.Text = text
		e.pendingAssistant.Thinking = false
		return
	}
	if e.assistantID == "" {
		return
	}
	if msg, ok := e.updateMessageLocked(e.assistantID, func(m *Message) {
		m.Text = text
		m.Thinking = false
	}); ok {
		e.sink.MessageUpdated(msg)
	}
}

// OnResponseComplete retires the session id and returns to idle.
func (e *Engine) OnResponseComplete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetTurnLocked()
}

// OnError surfaces a transport error as a single alert and resets to idle.
// Committed conversation history is left intact; outstanding placeholders
// are removed.
func (e *Engine) OnError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.sink.Alert(err.Error())
	}
	e.stopFallbackLocked()
	if e.recordingID != "" {
		e.removeMessageLocked(e.recordingID)
	}
	if e.assistantID != "" {
		if msg, ok := e.messageLocked(e.assistantID); ok && msg.placeholder() && strings.TrimSpace(msg.Text) == "" {
			e.removeMessageLocked(e.assistantID)
		}
	}
	e.resetTurnLocked()
}

// Close tears the engine down. Teardown is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return
	}
	e.closing = true
	e.stopFallbackLocked()
	e.resetTurnLocked()
	e.mu.Unlock()

	e.detectWG.Wait()
}

func (e *Engine) resetTurnLocked() {
	e.stopFallbackLocked()
	e.sessionID = ""
	e.committedSession = ""
	e.recordingID = ""
	e.assistantID = ""
	e.pendingAssistant = nil
	e.partial = ""
	e.setStateLocked(StateIdle)
}

func (e *Engine) setStateLocked(state State) {
	if e.state == state {
		return
	}
	e.state = state
	e.sink.StateChanged(state)
}

func (e *Engine) stopFallbackLocked() {
	if e.fallback != nil {
		e.fallback.Stop()
		e.fallback = nil
	}
}

func (e *Engine) messageLocked(id string) (Message, bool) {
	for _, m := range e.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func (e *Engine) updateMessageLocked(id string, fn func(*Message)) (Message, bool) {
	for i := range e.messages {
		if e.messages[i].ID == id {
			fn(&e.messages[i])
			return e.messages[i], true
		}
	}
	return Message{}, false
}

func (e *Engine) removeMessageLocked(id string) {
	for i := range e.messages {
		if e.messages[i].ID == id {
			e.messages = append(e.messages[:i], e.messages[i+1:]...)
			e.sink.MessageRemoved(id)
			return
		}
	}
}

// dispatchDetectionLocked sends the committed text to the detection pipeline
// without blocking the conversation flow. Failures are logged and swallowed.
func (e *Engine) dispatchDetectionLocked(text string) {
	if e.detector == nil || e.closing {
		return
	}
	e.detectSeq++
	seq := e.detectSeq
	session := e.sessionID
	timeout := e.cfg.DetectTimeout

	e.detectWG.Add(1)
	go func() {
		defer e.detectWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := e.detector.AddMessage(ctx, text)
		if err != nil {
			e.logger.Warn("detection pipeline failed", "session_id", session, "error", err)
			return
		}
		e.applyDetection(seq, session, result)
	}()
}

func (e *Engine) applyDetection(seq int64, session string, result *detect.Result) {
	if result == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Stale results (a newer turn already dispatched) still aggregate, but
	// only the latest dispatch may flip the chart gate so the expanded view
	// never pops open for an old turn.
	latest := seq == e.detectSeq
	e.insights.apply(result, session, e.now(), latest)
	e.sink.InsightsChanged(e.insights.snapshot())
}
