package events

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodePreservesIdentity(t *testing.T) {
	in, err := New(PaymentCompleted{OrderID: 7, PaymentID: 3, TransactionID: "tx-1", PaymentDate: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	if out.ID != in.ID || out.Kind != KindPaymentCompleted || !out.OccurredOn.Equal(in.OccurredOn) {
		t.Fatalf("envelope mismatch: %+v vs %+v", out, in)
	}
	p, ok := out.Payload.(PaymentCompleted)
	if !ok {
		t.Fatalf("payload type %T", out.Payload)
	}
	if p.TransactionID != "tx-1" || out.OrderID() != 7 {
		t.Fatalf("payload mismatch: %+v", p)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown kind", `{"eventId":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","kind":"Nope","payload":{}}`, ErrUnknownKind},
		{"missing id", `{"kind":"OrderCreated","payload":{}}`, nil},
		{"bad payload", `{"eventId":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","kind":"OrderCreated","payload":{"orderId":"x"}}`, nil},
		{"not json", `garbage`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeRejectsKindMismatch(t *testing.T) {
	env, _ := New(OrderConfirmed{OrderID: 1})
	env.Kind = KindOrderCancelled
	if _, err := Encode(env); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}

func TestEveryKindDecodes(t *testing.T) {
	for _, k := range Kinds {
		p, err := DecodePayload(k, []byte(`{}`))
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if p.Kind() != k {
			t.Fatalf("%s decoded as %s", k, p.Kind())
		}
	}
}

func TestOrderIDOutsideSaga(t *testing.T) {
	env, _ := New(UserRegistered{UserID: 5})
	if env.OrderID() != 0 {
		t.Fatalf("expected 0, got %d", env.OrderID())
	}
}
