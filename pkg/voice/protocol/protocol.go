// Package protocol defines the JSON frame schema spoken with the hosted
// realtime voice API. Frames are discriminated by a "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const ProtocolVersion1 = "1"

// Control operations accepted by the transport.
const (
	OpStartListening = "start_listening"
	OpStopListening  = "stop_listening"
	OpEndSession     = "end_session"
)

// DecodeError is a coded wire-level decode failure.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// IsUnsupported reports whether err marks a frame type or operation this
// protocol revision does not know.
func IsUnsupported(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr) && decodeErr.Code == "unsupported"
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HelloAuth struct {
	APIKey string `json:"api_key,omitempty"`
}

type HelloFeatures struct {
	WantPartialTranscripts bool `json:"want_partial_transcripts,omitempty"`
	WantFlowcharts         bool `json:"want_flowcharts,omitempty"`
}

// ClientHello opens a voice session.
type ClientHello struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Client          HelloClient   `json:"client,omitempty"`
	Auth            *HelloAuth    `json:"auth,omitempty"`
	UserID          string        `json:"user_id,omitempty"`
	Persona         string        `json:"persona,omitempty"`
	Features        HelloFeatures `json:"features,omitempty"`
}

// ClientControl carries listening and session lifecycle operations.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// ClientUserMessage sends a typed user turn.
type ClientUserMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ValidateHello checks the fields the transport requires.
func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badFrame("hello.protocol_version is required", "protocol_version")
	}
	return nil
}

// DecodeClientMessage parses a frame sent by a client. Used by test servers
// and kept symmetric with DecodeServerMessage.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid control frame", "")
		}
		op := strings.TrimSpace(msg.Op)
		switch op {
		case OpStartListening, OpStopListening, OpEndSession:
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	case "user_message":
		var msg ClientUserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid user_message frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badFrame("user_message.text is required", "text")
		}
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// ServerHelloAck acknowledges a hello and names the network session.
type ServerHelloAck struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	Features        HelloFeatures `json:"features,omitempty"`
}

// ServerListeningStarted signals that voice capture is active.
type ServerListeningStarted struct {
	Type string `json:"type"`
}

// ServerListeningStopped signals the end of voice capture for this turn.
type ServerListeningStopped struct {
	Type string `json:"type"`
}

// ServerTranscript carries a partial or final speech transcript.
type ServerTranscript struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ServerResponseStart announces an assistant reply identified by ResponseID.
type ServerResponseStart struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
}

// ServerResponseDelta carries the latest cumulative reply text.
type ServerResponseDelta struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	Text       string `json:"text"`
}

// ServerResponseFinal carries the complete reply text.
type ServerResponseFinal struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	Text       string `json:"text"`
}

// ServerResponseComplete closes the turn.
type ServerResponseComplete struct {
	Type string `json:"type"`
}

// FlowchartNode is one node of a generated session flowchart.
type FlowchartNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// FlowchartEdge connects two flowchart nodes.
type FlowchartEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ServerFlowchart delivers a transport-generated session flowchart.
type ServerFlowchart struct {
	Type  string          `json:"type"`
	Nodes []FlowchartNode `json:"nodes"`
	Edges []FlowchartEdge `json:"edges"`
}

// ServerWarning is a non-fatal transport notice.
type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerError is a transport error; Close indicates the session is over.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

// DecodeServerMessage parses a frame received from the transport.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	decode := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, badFrame("invalid "+typ+" frame", "")
		}
		return v, nil
	}

	switch typ {
	case "hello_ack":
		v, err := decode(&ServerHelloAck{})
		if err != nil {
			return nil, err
		}
		ack := v.(*ServerHelloAck)
		if strings.TrimSpace(ack.SessionID) == "" {
			return nil, badFrame("hello_ack.session_id is required", "session_id")
		}
		return *ack, nil
	case "listening_started":
		v, err := decode(&ServerListeningStarted{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerListeningStarted), nil
	case "listening_stopped":
		v, err := decode(&ServerListeningStopped{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerListeningStopped), nil
	case "transcript":
		v, err := decode(&ServerTranscript{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerTranscript), nil
	case "response_start":
		v, err := decode(&ServerResponseStart{})
		if err != nil {
			return nil, err
		}
		start := v.(*ServerResponseStart)
		if strings.TrimSpace(start.ResponseID) == "" {
			return nil, badFrame("response_start.response_id is required", "response_id")
		}
		return *start, nil
	case "response_delta":
		v, err := decode(&ServerResponseDelta{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerResponseDelta), nil
	case "response_final":
		v, err := decode(&ServerResponseFinal{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerResponseFinal), nil
	case "response_complete":
		v, err := decode(&ServerResponseComplete{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerResponseComplete), nil
	case "flowchart":
		v, err := decode(&ServerFlowchart{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerFlowchart), nil
	case "warning":
		v, err := decode(&ServerWarning{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerWarning), nil
	case "error":
		v, err := decode(&ServerError{})
		if err != nil {
			return nil, err
		}
		return *v.(*ServerError), nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}
