package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDecodeInbound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		want    Kind
	}{
		{"offer", `{"type":"offer","sdp":"v=0"}`, false, KindOffer},
		{"bare available", `{"type":"available"}`, false, KindAvailable},
		{"missing type", `{"sdp":"v=0"}`, true, ""},
		{"numeric type", `{"type":7}`, true, ""},
		{"not json", `offer`, true, ""},
		{"empty type", `{"type":""}`, true, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := DecodeInbound([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInbound() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && in.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", in.Kind, tt.want)
			}
		})
	}
}

func TestInboundPayloadIsOpaque(t *testing.T) {
	t.Parallel()

	in, err := DecodeInbound([]byte(`{"type":"ice","candidate":{"sdpMid":"0"},"extra":42}`))
	if err != nil {
		t.Fatalf("DecodeInbound() error = %v", err)
	}

	payload := in.Payload()
	if _, ok := payload["candidate"]; !ok {
		t.Error("candidate field lost")
	}
	if _, ok := payload["extra"]; !ok {
		t.Error("unknown field must pass through untouched")
	}
	if _, ok := payload["type"]; ok {
		t.Error("type discriminator leaked into payload")
	}
}

func TestNewSignalStampsSender(t *testing.T) {
	t.Parallel()

	from := uuid.New()
	payload := map[string]json.RawMessage{
		"sdp":  json.RawMessage(`"v=0"`),
		"from": json.RawMessage(`"spoofed"`),
	}

	out := NewSignal(KindOffer, from, payload)
	data, err := out.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded["type"] != "offer" {
		t.Errorf("type = %v, want offer", decoded["type"])
	}
	if decoded["from"] != from.String() {
		t.Errorf("from = %v, want %s (client-supplied from must be overwritten)", decoded["from"], from)
	}
	if decoded["sdp"] != "v=0" {
		t.Errorf("sdp = %v, want v=0", decoded["sdp"])
	}
}

func TestOutboundEncode(t *testing.T) {
	t.Parallel()

	room, partner := uuid.New(), uuid.New()
	data, err := NewMatched(room, partner).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded["type"] != "matched" || decoded["roomId"] != room.String() || decoded["partnerId"] != partner.String() {
		t.Errorf("unexpected matched frame: %v", decoded)
	}
}

func TestStringField(t *testing.T) {
	t.Parallel()

	in, _ := DecodeInbound([]byte(`{"type":"auth","userId":"alice","token":12}`))
	if got := in.StringField("userId"); got != "alice" {
		t.Errorf("StringField(userId) = %q, want alice", got)
	}
	if got := in.StringField("token"); got != "" {
		t.Errorf("StringField(token) = %q for non-string field, want empty", got)
	}
	if got := in.StringField("missing"); got != "" {
		t.Errorf("StringField(missing) = %q, want empty", got)
	}
}
