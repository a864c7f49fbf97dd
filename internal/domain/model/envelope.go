package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// RelayEnvelope carries a signaling payload (or a partner-left notice) across
// instances. Delivery is fire-and-forget: the instance whose registry resolves
// Dest performs local delivery, everyone else ignores the envelope.
type RelayEnvelope struct {
	Dest    uuid.UUID                  `json:"dest"`
	From    uuid.UUID                  `json:"from"`
	Kind    Kind                       `json:"kind"`
	Payload map[string]json.RawMessage `json:"payload,omitempty"`
}

// MatchEnvelope notifies a remote instance that one of its waiting
// connections was picked from the shared queue and paired.
type MatchEnvelope struct {
	Dest      uuid.UUID `json:"dest"`
	PartnerID uuid.UUID `json:"partnerId"`
	RoomID    uuid.UUID `json:"roomId"`
}
