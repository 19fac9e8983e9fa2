package kafka

import (
	"errors"
	"fmt"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
)

func TestEncodeSetsTypeHeader(t *testing.T) {
	msg, err := encode(Event{Key: "movies", Type: "index_complete", Value: map[string]int{"docs": 3}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "movies" {
		t.Errorf("key = %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "index_complete" {
		t.Errorf("headers = %+v", msg.Headers)
	}
	if string(msg.Value) != `{"docs":3}` {
		t.Errorf("value = %s", msg.Value)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Value: make(chan int)})
	if !errors.Is(err, ErrEncode) || !Permanent(err) {
		t.Fatalf("encode error = %v, want permanent ErrEncode", err)
	}
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), false},
		{fmt.Errorf("publishing to kafka: %w", kafkago.LeaderNotAvailable), false},
		{fmt.Errorf("publishing to kafka: %w", kafkago.MessageSizeTooLarge), true},
		{fmt.Errorf("publishing to kafka: %w", kafkago.MessageTooLargeError{}), true},
	}
	for _, tt := range tests {
		if got := Permanent(tt.err); got != tt.want {
			t.Errorf("Permanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Index string `json:"index"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"index":"movies"}`))
	if err != nil || got.Index != "movies" {
		t.Fatalf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`{`)); err == nil {
		t.Fatal("expected decode error")
	}
}
