package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type testConfig struct {
	redisURL    string
	tlsInsecure bool
	queue       string
	concurrency int
}

func (c testConfig) GetRedisURL() string       { return c.redisURL }
func (c testConfig) GetRedisTLSInsecure() bool { return c.tlsInsecure }
func (c testConfig) GetAsynqQueueName() string { return c.queue }
func (c testConfig) GetAsynqConcurrency() int  { return c.concurrency }

func TestNewClientRequiresRedisURL(t *testing.T) {
	_, err := NewClient(testConfig{})
	if err == nil {
		t.Fatal("expected an error without redis url")
	}
}

func TestNewClientRejectsInvalidRedisURL(t *testing.T) {
	_, err := NewClient(testConfig{redisURL: "not-a-url"})
	if err == nil {
		t.Fatal("expected an error for an invalid redis url")
	}
}

func TestEnqueueOfferTimeoutSweep(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(testConfig{redisURL: "redis://" + srv.Addr(), queue: "dispatch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if err := client.EnqueueOfferTimeoutSweep(context.Background(), OfferTimeoutSweepPayload{BatchSize: 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnqueueSweepDeduplicatesByTaskID(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(testConfig{redisURL: "redis://" + srv.Addr(), queue: "dispatch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.EnqueueOfferTimeoutSweep(ctx, OfferTimeoutSweepPayload{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// second enqueue hits the task id conflict and is swallowed
	if err := client.EnqueueOfferTimeoutSweep(ctx, OfferTimeoutSweepPayload{}); err != nil {
		t.Fatalf("expected duplicate enqueue to be a no-op, got %v", err)
	}
}

func TestEnqueueWorkflowOutboxDrain(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(testConfig{redisURL: "redis://" + srv.Addr(), queue: "dispatch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if err := client.EnqueueWorkflowOutboxDrain(context.Background(), WorkflowOutboxDrainPayload{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.Addr != "localhost:6380" {
		t.Fatalf("expected addr localhost:6380, got %s", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Fatalf("expected password to be parsed, got %q", opt.Password)
	}
	if opt.DB != 2 {
		t.Fatalf("expected db 2, got %d", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Fatal("expected no tls config for redis://")
	}
}

func TestRedisClientOptTLSInsecure(t *testing.T) {
	opt, err := redisClientOpt("redis://localhost:6379", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected an insecure tls config")
	}
}
