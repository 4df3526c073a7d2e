package protocol

import (
	"errors"
	"testing"
)

func TestDecodeServerMessage_Transcript(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"transcript","text":"I feel stuck","is_final":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	transcript, ok := msg.(ServerTranscript)
	if !ok {
		t.Fatalf("expected ServerTranscript, got %T", msg)
	}
	if transcript.Text != "I feel stuck" || !transcript.IsFinal {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}

func TestDecodeServerMessage_HelloAckRequiresSessionID(t *testing.T) {
	_, err := DecodeServerMessage([]byte(`{"type":"hello_ack","protocol_version":"1"}`))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Param != "session_id" {
		t.Fatalf("expected session_id param, got %q", decodeErr.Param)
	}
}

func TestDecodeServerMessage_ResponseStartRequiresID(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`{"type":"response_start"}`)); err == nil {
		t.Fatal("expected error for missing response_id")
	}
}

func TestDecodeServerMessage_UnknownType(t *testing.T) {
	_, err := DecodeServerMessage([]byte(`{"type":"haptics"}`))
	if !IsUnsupported(err) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestDecodeServerMessage_MissingType(t *testing.T) {
	for _, payload := range []string{`{}`, `{"type":"  "}`, `not json`} {
		if _, err := DecodeServerMessage([]byte(payload)); err == nil {
			t.Fatalf("expected error for payload %q", payload)
		}
	}
}

func TestDecodeClientMessage_Control(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"control","op":" start_listening "}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("expected ClientControl, got %T", msg)
	}
	if control.Op != OpStartListening {
		t.Fatalf("op not normalized: %q", control.Op)
	}
}

func TestDecodeClientMessage_ControlUnknownOp(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"control","op":"reboot"}`))
	if !IsUnsupported(err) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestDecodeClientMessage_UserMessageRequiresText(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"user_message","text":"  "}`)); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestValidateHello(t *testing.T) {
	if err := ValidateHello(ClientHello{Type: "hello"}); err == nil {
		t.Fatal("expected error for missing protocol_version")
	}
	if err := ValidateHello(ClientHello{Type: "hello", ProtocolVersion: ProtocolVersion1}); err != nil {
		t.Fatalf("valid hello rejected: %v", err)
	}
}
