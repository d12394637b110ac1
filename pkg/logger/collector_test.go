package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
	topic   string
}

func (c *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = topic
	c.batches = append(c.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	log := NewNop()
	log.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 50, Topic: "finreplay.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		log.Error("decide failed", String("split", "valid"), Error(errors.New("timeout")))
	}
	log.Error("load feed failed", String("split", "test"))
	log.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(pub.batches))
	}
	batch := pub.batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected 2 unique entries, got %d", len(batch))
	}
	if batch[0].Message != "decide failed" || batch[0].Count != 3 {
		t.Fatalf("unexpected first entry %+v", batch[0])
	}
	if pub.topic != "finreplay.logs" {
		t.Fatalf("unexpected topic %q", pub.topic)
	}
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 {
		t.Fatalf("unexpected batches %+v", pub.batches)
	}
}
