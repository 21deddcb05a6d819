package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkovacs/hospital/internal/replica"
)

func sampleTransition(name string) Transition {
	return Transition{
		Replica: name,
		From:    replica.StateHealthy,
		To:      replica.StateSick,
		At:      time.Now().UTC(),
	}
}

func TestNewSlackNotifier_EmptyURLIsNoop(t *testing.T) {
	n := NewSlackNotifier(zerolog.Nop(), "")
	if _, ok := n.(*NoopNotifier); !ok {
		t.Fatalf("expected noop notifier, got %T", n)
	}
	if err := n.Notify(context.Background(), "api", []Transition{sampleTransition("api-1")}); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
}

func TestSlackNotifier_PostsBlocks(t *testing.T) {
	var payloads atomic.Int64
	var lastBody atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payloads.Add(1)
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode slack payload: %v", err)
		}
		lastBody.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewSlackNotifier(zerolog.Nop(), ts.URL, WithSlackTiming(fastTiming()))
	err := n.Notify(context.Background(), "api", []Transition{sampleTransition("api-1")})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if payloads.Load() != 1 {
		t.Fatalf("expected one payload, got %d", payloads.Load())
	}
	body := lastBody.Load().(map[string]any)
	text, _ := body["text"].(string)
	if text != "Service api: 1 replica transition(s)" {
		t.Fatalf("unexpected summary text: %q", text)
	}
	if _, ok := body["blocks"]; !ok {
		t.Fatalf("expected blocks in payload")
	}
}

func TestSlackNotifier_EmptyTransitionsIsNoop(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request for empty transitions")
	}))
	defer ts.Close()

	n := NewSlackNotifier(zerolog.Nop(), ts.URL, WithSlackTiming(fastTiming()))
	if err := n.Notify(context.Background(), "api", nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
}

func TestBuildSlackMessages_ChunksLargeBatches(t *testing.T) {
	transitions := make([]Transition, 100)
	for i := range transitions {
		transitions[i] = sampleTransition(fmt.Sprintf("api-%d", i))
	}

	messages := buildSlackMessages("api", transitions)
	if len(messages) != 3 {
		t.Fatalf("expected 3 chunks for 100 transitions, got %d", len(messages))
	}
	for i, message := range messages {
		if message.Blocks == nil {
			t.Fatalf("message %d has no blocks", i)
		}
		if blocks := len(message.Blocks.BlockSet); blocks > slackMaxBlocks {
			t.Fatalf("message %d exceeds block limit: %d", i, blocks)
		}
	}
}
