package voice

import (
	"encoding/json"

	"github.com/attune-app/attune/pkg/voice/protocol"
)

// Event is a decoded frame emitted by Session.Events().
type Event interface {
	eventType() string
}

type HelloAckEvent struct{ Ack protocol.ServerHelloAck }

func (e HelloAckEvent) eventType() string { return "hello_ack" }

type ListeningStartedEvent struct{}

func (e ListeningStartedEvent) eventType() string { return "listening_started" }

type ListeningStoppedEvent struct{}

func (e ListeningStoppedEvent) eventType() string { return "listening_stopped" }

// TranscriptEvent carries a partial or final transcript of the user's speech.
type TranscriptEvent struct {
	Text    string
	IsFinal bool
}

func (e TranscriptEvent) eventType() string { return "transcript" }

type ResponseStartEvent struct{ ResponseID string }

func (e ResponseStartEvent) eventType() string { return "response_start" }

// ResponseDeltaEvent carries cumulative reply text, not an append-only delta.
type ResponseDeltaEvent struct {
	ResponseID string
	Text       string
}

func (e ResponseDeltaEvent) eventType() string { return "response_delta" }

type ResponseFinalEvent struct {
	ResponseID string
	Text       string
}

func (e ResponseFinalEvent) eventType() string { return "response_final" }

type ResponseCompleteEvent struct{}

func (e ResponseCompleteEvent) eventType() string { return "response_complete" }

type FlowchartEvent struct{ Chart protocol.ServerFlowchart }

func (e FlowchartEvent) eventType() string { return "flowchart" }

type WarningEvent struct{ Warning protocol.ServerWarning }

func (e WarningEvent) eventType() string { return "warning" }

type ErrorEvent struct{ Error protocol.ServerError }

func (e ErrorEvent) eventType() string { return "error" }

// UnknownEvent preserves frames newer than this client understands.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }
