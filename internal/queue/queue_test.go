package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	msg, err := NewEnrollMessage(EnrollJob{StudentID: "s-1", PhotoURL: "https://img/1.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}

	out, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-out:
		if got.Type != "enroll" {
			t.Fatalf("type = %q, want enroll", got.Type)
		}
		var job EnrollJob
		if err := json.Unmarshal(got.Body, &job); err != nil {
			t.Fatal(err)
		}
		if job.StudentID != "s-1" || job.PhotoURL != "https://img/1.jpg" {
			t.Fatalf("job round trip wrong: %+v", job)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestInMemoryPublishRespectsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := q.Publish(ctx, Message{Type: "enroll"}); err != nil {
		t.Fatal(err)
	}
	cancel()
	// Queue full and context cancelled: must not block.
	if err := q.Publish(ctx, Message{Type: "enroll"}); err == nil {
		t.Fatal("publish into a full queue with cancelled context must fail")
	}
}
