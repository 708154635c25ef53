package client

import (
	"reflect"
	"testing"
)

func TestFlushDrainsInOrderExactlyOnce(t *testing.T) {
	q := NewQueue()
	q.Enqueue(QueuedSend{TempID: "t1", ChannelID: "general", Text: "one"})
	q.Enqueue(QueuedSend{TempID: "t2", ChannelID: "general", Text: "two"})
	q.Enqueue(QueuedSend{TempID: "t3", ChannelID: "random", Text: "three"})

	var sent []string
	q.Flush(func(s QueuedSend) {
		sent = append(sent, s.TempID)
	})

	if want := []string{"t1", "t2", "t3"}; !reflect.DeepEqual(sent, want) {
		t.Fatalf("flush order %v, want %v", sent, want)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d left", q.Len())
	}

	// A second flush transmits nothing.
	q.Flush(func(s QueuedSend) {
		t.Fatalf("retransmitted %s", s.TempID)
	})
}

func TestFlushEmptyQueueIsNoop(t *testing.T) {
	q := NewQueue()
	q.Flush(func(QueuedSend) {
		t.Fatal("transmit called on empty queue")
	})
}

func TestEnqueueDuringFlushIsDrainedToo(t *testing.T) {
	q := NewQueue()
	q.Enqueue(QueuedSend{TempID: "t1", ChannelID: "general", Text: "one"})

	var sent []string
	q.Flush(func(s QueuedSend) {
		sent = append(sent, s.TempID)
		if s.TempID == "t1" {
			q.Enqueue(QueuedSend{TempID: "t2", ChannelID: "general", Text: "two"})
		}
	})

	if want := []string{"t1", "t2"}; !reflect.DeepEqual(sent, want) {
		t.Fatalf("flush order %v, want %v", sent, want)
	}
}
