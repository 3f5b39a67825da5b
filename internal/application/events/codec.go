package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrUnknownKind  = errors.New("unknown event kind")
	ErrKindMismatch = errors.New("event kind does not match payload")
)

type wireEnvelope struct {
	EventID    uuid.UUID       `json:"eventId"`
	Kind       Kind            `json:"kind"`
	OccurredOn time.Time       `json:"occurredOn"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode renders the envelope as it travels on the broker.
func Encode(e Envelope) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s: nil payload", e.ID)
	}
	if e.Payload.Kind() != e.Kind {
		return nil, fmt.Errorf("event %s: %w", e.ID, ErrKindMismatch)
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
	}
	return json.Marshal(wireEnvelope{
		EventID:    e.ID,
		Kind:       e.Kind,
		OccurredOn: e.OccurredOn,
		Payload:    raw,
	})
}

func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if w.EventID == uuid.Nil {
		return Envelope{}, errors.New("envelope without event id")
	}
	p, err := DecodePayload(w.Kind, w.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: w.EventID, Kind: w.Kind, OccurredOn: w.OccurredOn, Payload: p}, nil
}

// DecodePayload resolves a stored payload by its kind name.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	switch kind {
	case KindOrderCreated:
		return decodeAs[OrderCreated](raw)
	case KindStockReserved:
		return decodeAs[StockReserved](raw)
	case KindStockReservationFailed:
		return decodeAs[StockReservationFailed](raw)
	case KindPaymentCompleted:
		return decodeAs[PaymentCompleted](raw)
	case KindPaymentFailed:
		return decodeAs[PaymentFailed](raw)
	case KindOrderConfirmed:
		return decodeAs[OrderConfirmed](raw)
	case KindOrderCancelled:
		return decodeAs[OrderCancelled](raw)
	case KindUserRegistered:
		return decodeAs[UserRegistered](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeAs[T Payload](raw []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", p.Kind(), err)
	}
	return p, nil
}
