package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies a wire message type, client-to-server or server-to-client.
type Kind string

const (
	// Client -> server.
	KindAuth      Kind = "auth"
	KindAvailable Kind = "available"
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindIce       Kind = "ice"
	KindNext      Kind = "next"
	KindLeave     Kind = "leave"
	KindPing      Kind = "ping"

	// Server -> client.
	KindReady       Kind = "ready"
	KindMatched     Kind = "matched"
	KindPartnerLeft Kind = "partner-left"
	KindError       Kind = "error"
	KindPong        Kind = "pong"
)

// IsSignal reports whether the kind carries an opaque signaling payload
// that is relayed to the partner untouched.
func (k Kind) IsSignal() bool {
	return k == KindOffer || k == KindAnswer || k == KindIce
}

// ErrorCode is a machine-readable error identifier surfaced to clients.
type ErrorCode string

const (
	CodeAlreadyPaired ErrorCode = "ALREADY_PAIRED"
	CodeNotPaired     ErrorCode = "NOT_PAIRED"
	CodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	CodeUnknownType   ErrorCode = "UNKNOWN_TYPE"
	CodeRateLimit     ErrorCode = "RATE_LIMIT"
)

// Pairing state violations reported back to the caller without mutation.
var (
	ErrAlreadyPaired = errors.New("connection already has a partner")
	ErrNotPaired     = errors.New("connection has no partner")
)

// Inbound is a decoded client frame. Fields other than "type" are kept raw
// so signaling payloads pass through without interpretation.
type Inbound struct {
	Kind   Kind
	fields map[string]json.RawMessage
}

// DecodeInbound parses a raw client frame. A frame without a string "type"
// field is a protocol violation.
func DecodeInbound(raw []byte) (*Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	rawKind, ok := fields["type"]
	if !ok {
		return nil, errors.New("decode frame: missing type")
	}
	var kind string
	if err := json.Unmarshal(rawKind, &kind); err != nil || kind == "" {
		return nil, errors.New("decode frame: malformed type")
	}
	delete(fields, "type")

	return &Inbound{Kind: Kind(kind), fields: fields}, nil
}

// StringField returns the named field decoded as a string, or "" when it is
// absent or not a string.
func (in *Inbound) StringField(name string) string {
	raw, ok := in.fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Payload returns the opaque body of the frame for relaying.
func (in *Inbound) Payload() map[string]json.RawMessage {
	return in.fields
}

// Outbound is a server frame ready to be serialized for one client.
type Outbound struct {
	Kind   Kind
	Fields map[string]any
}

// Encode serializes the frame with its "type" discriminator.
func (o *Outbound) Encode() ([]byte, error) {
	body := make(map[string]any, len(o.Fields)+1)
	for k, v := range o.Fields {
		body[k] = v
	}
	body["type"] = o.Kind
	return json.Marshal(body)
}

// NewReady greets a freshly registered connection with its identity.
func NewReady(clientID uuid.UUID) *Outbound {
	return &Outbound{Kind: KindReady, Fields: map[string]any{"clientId": clientID.String()}}
}

// NewMatched announces a successful pairing.
func NewMatched(roomID, partnerID uuid.UUID) *Outbound {
	return &Outbound{Kind: KindMatched, Fields: map[string]any{
		"roomId":    roomID.String(),
		"partnerId": partnerID.String(),
	}}
}

// NewPartnerLeft tells a connection its partner is gone.
func NewPartnerLeft() *Outbound {
	return &Outbound{Kind: KindPartnerLeft}
}

// NewPong answers a keep-alive ping.
func NewPong() *Outbound {
	return &Outbound{Kind: KindPong}
}

// NewError reports a protocol or state violation to the sender.
func NewError(code ErrorCode, message string) *Outbound {
	return &Outbound{Kind: KindError, Fields: map[string]any{
		"code":    string(code),
		"message": message,
	}}
}

// NewSignal rebuilds a relayed signaling frame, stamping the sender id and
// passing every original payload field through untouched.
func NewSignal(kind Kind, from uuid.UUID, payload map[string]json.RawMessage) *Outbound {
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		if k == "type" || k == "from" {
			continue
		}
		fields[k] = v
	}
	fields["from"] = from.String()
	return &Outbound{Kind: kind, Fields: fields}
}
