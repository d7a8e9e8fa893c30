package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeValidMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Type
	}{
		{"ready", `{"type":"GAME_READY","payload":{"timestamp":123}}`, TypeReady},
		{"started", `{"type":"GAME_STARTED","payload":{}}`, TypeStarted},
		{"score", `{"type":"SCORE_UPDATE","payload":{"score":40}}`, TypeScoreUpdate},
		{"time", `{"type":"TIME_UPDATE","payload":{"timeSpent":12}}`, TypeTimeUpdate},
		{"progress", `{"type":"PROGRESS_UPDATE","payload":{"progress":55.5}}`, TypeProgressUpdate},
		{"completed", `{"type":"GAME_COMPLETED","payload":{"score":55,"timeSpent":12,"progress":100}}`, TypeCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if msg.Type != tt.want {
				t.Errorf("type = %s, want %s", msg.Type, tt.want)
			}
		})
	}
}

func TestDecodePayloadFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"GAME_COMPLETED","payload":{"score":55,"timeSpent":12}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.Payload.Score == nil || *msg.Payload.Score != 55 {
		t.Errorf("score = %v, want 55", msg.Payload.Score)
	}
	if msg.Payload.TimeSpent == nil || *msg.Payload.TimeSpent != 12 {
		t.Errorf("timeSpent = %v, want 12", msg.Payload.TimeSpent)
	}
	if msg.Payload.Progress != nil {
		t.Errorf("progress should be absent, got %v", *msg.Payload.Progress)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing type", `{"payload":{}}`},
		{"unknown type", `{"type":"EVIL_TYPE","payload":{}}`},
		{"missing payload", `{"type":"GAME_READY"}`},
		{"host-only type from guest", `{"type":"PARENT_READY","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParentReadyRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	data, err := Encode(ParentReady(now))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"PARENT_READY"`) {
		t.Errorf("encoded handshake missing type: %s", s)
	}
	if !strings.Contains(s, "1700000000000") {
		t.Errorf("encoded handshake missing timestamp: %s", s)
	}
}
