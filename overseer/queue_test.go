package overseer

import (
	"context"
	"testing"
	"time"
)

func TestEnqueueReceivesCoordinatorResponse(t *testing.T) {
	q := NewQueue(1)

	go func() {
		op, respond, err := q.Next(context.Background())
		if err != nil {
			t.Errorf("Next: %v", err)
			return
		}
		if op.Operation != "CREATE" {
			t.Errorf("Operation = %q, want CREATE", op.Operation)
		}
		respond(Response{Payload: map[string]string{"ok": "true"}})
	}()

	resp, err := q.Enqueue(context.Background(), Op{Operation: "CREATE"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if resp.Payload["ok"] != "true" {
		t.Fatalf("Payload = %v, want ok=true", resp.Payload)
	}
}

func TestEnqueueTimesOutWithoutACoordinator(t *testing.T) {
	q := NewQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Enqueue(ctx, Op{Operation: "RELOAD"}); err == nil {
		t.Fatal("expected Enqueue to time out when nothing calls Next")
	}
}
