package outbox

import (
	"encoding/json"
	"time"
)

const envelopeVersion = 1

// ActorRef names the caller behind an event: an API client, a marketplace
// webhook or a scheduled job.
type ActorRef struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// PayloadEnvelope wraps every event body stored in outbox_events.payload.
// EventID equals the outbox row id, which consumers use for dedupe.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
