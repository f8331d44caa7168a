package registry

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Decoder turns one envelope's data into a typed payload.
type Decoder func(payload json.RawMessage) (any, error)

// As decodes into a fresh *T.
func As[T any]() Decoder {
	return func(payload json.RawMessage) (any, error) {
		target := new(T)
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, envelope version) to a decoder on the
// consuming side. It is filled at startup and read-only afterwards.
type DecoderRegistry struct {
	decoders map[decoderKey]Decoder
	types    map[enums.OutboxEventType]struct{}
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{
		decoders: map[decoderKey]Decoder{},
		types:    map[enums.OutboxEventType]struct{}{},
	}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	if !eventType.IsValid() {
		return fmt.Errorf("unknown event type %q", eventType)
	}
	if version < 1 {
		return fmt.Errorf("%s: version must be >= 1", eventType)
	}
	if decoder == nil {
		return fmt.Errorf("%s@v%d: decoder required", eventType, version)
	}
	key := decoderKey{eventType: eventType, version: version}
	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("%s@v%d registered twice", eventType, version)
	}
	r.decoders[key] = decoder
	r.types[eventType] = struct{}{}
	return nil
}

// RegisterSchemas adds the v1 decoder of each listed billing event, or of
// every event when none are listed.
func (r *DecoderRegistry) RegisterSchemas(only ...enums.OutboxEventType) error {
	for _, schema := range billingSchemas {
		if len(only) > 0 && !slices.Contains(only, schema.EventType) {
			continue
		}
		if err := r.Register(schema.EventType, 1, schema.Decode); err != nil {
			return err
		}
	}
	return nil
}

// Handles reports whether any version of eventType is registered.
func (r *DecoderRegistry) Handles(eventType enums.OutboxEventType) bool {
	_, ok := r.types[eventType]
	return ok
}

// Decode treats a zero version as v1, matching envelopes written before
// versions were stamped.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	if version <= 0 {
		version = 1
	}
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}
