// Package voice is the websocket client for the hosted realtime voice API.
// It turns wire frames into typed events and leaves conversation semantics
// to the caller.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/attune-app/attune/pkg/voice/protocol"
)

const defaultConnectTimeout = 15 * time.Second

// Config configures a voice Client.
type Config struct {
	// BaseURL is the http(s) or ws(s) endpoint of the voice API.
	BaseURL string
	APIKey  string

	UserID string
	// Persona is the system prompt installed for the session.
	Persona string

	WantPartialTranscripts bool
	WantFlowcharts         bool

	ConnectTimeout time.Duration

	ClientName    string
	ClientVersion string
}

// Client dials voice sessions against a configured endpoint.
type Client struct {
	cfg Config
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("voice: base URL is required")
	}
	if _, err := websocketEndpoint(cfg.BaseURL, "/v1/session"); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Client{cfg: cfg}, nil
}

func websocketEndpoint(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/") + path)
	if err != nil {
		return "", fmt.Errorf("voice: invalid base URL: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme.
	default:
		return "", fmt.Errorf("voice: base URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}

func (c *Client) buildHello() protocol.ClientHello {
	hello := protocol.ClientHello{
		Type:            "hello",
		ProtocolVersion: protocol.ProtocolVersion1,
		Client: protocol.HelloClient{
			Name:     strings.TrimSpace(c.cfg.ClientName),
			Version:  strings.TrimSpace(c.cfg.ClientVersion),
			Platform: "go",
		},
		UserID:  strings.TrimSpace(c.cfg.UserID),
		Persona: strings.TrimSpace(c.cfg.Persona),
		Features: protocol.HelloFeatures{
			WantPartialTranscripts: c.cfg.WantPartialTranscripts,
			WantFlowcharts:         c.cfg.WantFlowcharts,
		},
	}
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		hello.Auth = &protocol.HelloAuth{APIKey: key}
	}
	return hello
}

// Connect dials the endpoint, performs the hello handshake and returns an
// open Session. The hello_ack is also surfaced on Events().
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("voice: client must not be nil")
	}
	wsURL, err := websocketEndpoint(c.cfg.BaseURL, "/v1/session")
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		headers.Set("Authorization", "Bearer "+key)
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice: dial %s failed (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voice: dial %s: %w", wsURL, err)
	}

	if err := conn.WriteJSON(c.buildHello()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("voice: send hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("voice: read hello_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("voice: unexpected first frame type %d", messageType)
	}

	first, err := decodeFrame(payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch e := first.(type) {
	case HelloAckEvent:
		session := &Session{
			conn:      conn,
			sessionID: e.Ack.SessionID,
			events:    make(chan Event, 256),
			done:      make(chan struct{}),
		}
		session.emitEvent(e)
		go session.readLoop()
		return session, nil
	case ErrorEvent:
		_ = conn.Close()
		return nil, fmt.Errorf("voice: session rejected: %s (%s)", strings.TrimSpace(e.Error.Message), strings.TrimSpace(e.Error.Code))
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("voice: unexpected first frame %q", first.eventType())
	}
}

// Session is an open realtime voice session.
type Session struct {
	conn      *websocket.Conn
	sessionID string

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// ID returns the network session id assigned by the hello_ack.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Events yields decoded frames. The channel closes when the session ends.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// StartListening asks the transport to begin voice capture.
func (s *Session) StartListening() error {
	return s.sendControl(protocol.OpStartListening)
}

// StopListening asks the transport to end voice capture for this turn.
func (s *Session) StopListening() error {
	return s.sendControl(protocol.OpStopListening)
}

// EndSession requests a graceful session shutdown.
func (s *Session) EndSession() error {
	return s.sendControl(protocol.OpEndSession)
}

// SendMessage submits a typed user turn.
func (s *Session) SendMessage(text string) error {
	if s == nil {
		return fmt.Errorf("voice: session must not be nil")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("voice: message text must not be empty")
	}
	return s.sendJSON(protocol.ClientUserMessage{Type: "user_message", Text: trimmed})
}

func (s *Session) sendControl(op string) error {
	if s == nil {
		return fmt.Errorf("voice: session must not be nil")
	}
	return s.sendJSON(protocol.ClientControl{Type: "control", Op: op})
}

func (s *Session) sendJSON(v any) error {
	if s.closed.Load() {
		return fmt.Errorf("voice: session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close closes the websocket and waits for the read loop to drain.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error, if any. It blocks until the
// session has ended.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.closed.Load() {
				return
			}
			s.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := decodeFrame(data)
		if err != nil {
			s.setErr(err)
			return
		}
		s.emitEvent(event)
		if errEvent, ok := event.(ErrorEvent); ok && errEvent.Error.Close {
			s.setErr(fmt.Errorf("voice: session closed by server: %s (%s)", strings.TrimSpace(errEvent.Error.Message), strings.TrimSpace(errEvent.Error.Code)))
			return
		}
	}
}

func (s *Session) emitEvent(event Event) {
	if event == nil {
		return
	}
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking the read loop if the caller stops consuming.
	}
}

func decodeFrame(data []byte) (Event, error) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		if protocol.IsUnsupported(err) {
			var envelope struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(data, &envelope)
			return UnknownEvent{Type: envelope.Type, Raw: append([]byte(nil), data...)}, nil
		}
		return nil, err
	}

	switch m := msg.(type) {
	case protocol.ServerHelloAck:
		return HelloAckEvent{Ack: m}, nil
	case protocol.ServerListeningStarted:
		return ListeningStartedEvent{}, nil
	case protocol.ServerListeningStopped:
		return ListeningStoppedEvent{}, nil
	case protocol.ServerTranscript:
		return TranscriptEvent{Text: m.Text, IsFinal: m.IsFinal}, nil
	case protocol.ServerResponseStart:
		return ResponseStartEvent{ResponseID: m.ResponseID}, nil
	case protocol.ServerResponseDelta:
		return ResponseDeltaEvent{ResponseID: m.ResponseID, Text: m.Text}, nil
	case protocol.ServerResponseFinal:
		return ResponseFinalEvent{ResponseID: m.ResponseID, Text: m.Text}, nil
	case protocol.ServerResponseComplete:
		return ResponseCompleteEvent{}, nil
	case protocol.ServerFlowchart:
		return FlowchartEvent{Chart: m}, nil
	case protocol.ServerWarning:
		return WarningEvent{Warning: m}, nil
	case protocol.ServerError:
		return ErrorEvent{Error: m}, nil
	default:
		return nil, fmt.Errorf("voice: unhandled decoded frame %T", msg)
	}
}
