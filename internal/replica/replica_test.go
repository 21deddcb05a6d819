package replica

import (
	"sync"
	"testing"
)

func TestHandle_StopFiresOnce(t *testing.T) {
	h := NewHandle("api", "api-1", nil)

	if h.Stopping() {
		t.Fatalf("expected new handle not to be stopping")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Stop()
		}()
	}
	wg.Wait()

	select {
	case <-h.Done():
	default:
		t.Fatalf("expected done channel to be closed")
	}
	if !h.Stopping() {
		t.Fatalf("expected handle to report stopping")
	}

	// A second trigger after the first must be a no-op, not a panic.
	h.Stop()
}

func TestHandle_PublishedState(t *testing.T) {
	h := NewHandle("api", "api-1", nil)

	if got := h.State(); got != StateAdded {
		t.Fatalf("expected initial state added, got %s", got)
	}

	h.SetState(StateStarted)
	if got := h.State(); got != StateStarted {
		t.Fatalf("expected started, got %s", got)
	}

	h.SetState(StateHealthy)
	if got := h.State(); got != StateHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
}

func TestHandle_Metrics(t *testing.T) {
	h := NewHandle("api", "api-1", nil)

	if _, ok := h.Metric("requests"); ok {
		t.Fatalf("expected no metric before set")
	}

	h.SetMetric("requests", 42)
	value, ok := h.Metric("requests")
	if !ok || value.(int) != 42 {
		t.Fatalf("expected metric 42, got %v (%v)", value, ok)
	}
}

func TestState_Labels(t *testing.T) {
	cases := map[State]string{
		StateAdded:   "added",
		StateStarted: "started",
		StateHealthy: "healthy",
		StateSick:    "sick",
		StateStopped: "stopped",
		StateRemoved: "removed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}

	text, err := StateSick.MarshalText()
	if err != nil || string(text) != "sick" {
		t.Fatalf("expected marshaled sick, got %q (%v)", text, err)
	}
}
