package voice

import "github.com/attune-app/attune/pkg/voice/protocol"

// Handler receives session events as plain callbacks. Nil fields are skipped.
type Handler struct {
	OnListeningStarted func()
	OnListeningStopped func()
	OnTranscript       func(text string, isFinal bool)
	OnResponseStart    func(responseID string)
	OnResponseDelta    func(responseID, text string)
	OnResponseFinal    func(responseID, text string)
	OnResponseComplete func()
	OnFlowchart        func(chart protocol.ServerFlowchart)
	OnWarning          func(code, message string)
	OnError            func(code, message string)
}

// Dispatch routes one event to the matching handler callback.
func Dispatch(event Event, h Handler) {
	switch e := event.(type) {
	case ListeningStartedEvent:
		if h.OnListeningStarted != nil {
			h.OnListeningStarted()
		}
	case ListeningStoppedEvent:
		if h.OnListeningStopped != nil {
			h.OnListeningStopped()
		}
	case TranscriptEvent:
		if h.OnTranscript != nil {
			h.OnTranscript(e.Text, e.IsFinal)
		}
	case ResponseStartEvent:
		if h.OnResponseStart != nil {
			h.OnResponseStart(e.ResponseID)
		}
	case ResponseDeltaEvent:
		if h.OnResponseDelta != nil {
			h.OnResponseDelta(e.ResponseID, e.Text)
		}
	case ResponseFinalEvent:
		if h.OnResponseFinal != nil {
			h.OnResponseFinal(e.ResponseID, e.Text)
		}
	case ResponseCompleteEvent:
		if h.OnResponseComplete != nil {
			h.OnResponseComplete()
		}
	case FlowchartEvent:
		if h.OnFlowchart != nil {
			h.OnFlowchart(e.Chart)
		}
	case WarningEvent:
		if h.OnWarning != nil {
			h.OnWarning(e.Warning.Code, e.Warning.Message)
		}
	case ErrorEvent:
		if h.OnError != nil {
			h.OnError(e.Error.Code, e.Error.Message)
		}
	}
}

// Run consumes the session's events until it ends and returns the terminal
// session error, if any.
func Run(s *Session, h Handler) error {
	for event := range s.Events() {
		Dispatch(event, h)
	}
	return s.Err()
}
