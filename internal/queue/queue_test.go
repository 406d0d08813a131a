package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := q.Publish(ctx, Message{Type: "email", Body: json.RawMessage(`{"to":"a@b.c"}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != "email" || string(msg.Body) != `{"to":"a@b.c"}` {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	msgs, _ := q.Consume(ctx)
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestEnvelopeCodec(t *testing.T) {
	raw, err := encode(Message{Type: "email", Body: json.RawMessage(`{"kind":"feedback_reminder"}`), Attempt: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "email" || msg.Attempt != 2 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := decode("email|legacy"); err == nil {
		t.Fatal("want error for non-JSON payload")
	}
	if _, err := decode(`{"body":{}}`); err == nil {
		t.Fatal("want error for missing type")
	}
}
