package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// Decoder turns an envelope's data field into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds one decoder per (event type, envelope version), so a
// payload shape change ships as a new version next to the old one.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]Decoder{}}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	r.decoders[decoderKey{eventType, version}] = decode
	r.mu.Unlock()
}

func (r *DecoderRegistry) Has(eventType enums.OutboxEventType, version int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[decoderKey{eventType, version}]
	return ok
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s v%d", eventType, version)
	}
	return decode(data)
}

// JSONDecoder decodes into a fresh *T and rejects fields T does not know,
// which catches producers running ahead of this consumer's schema.
func JSONDecoder[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		out := new(T)
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
