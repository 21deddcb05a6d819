package healthcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTracker_ReadyAfterStart(t *testing.T) {
	tracker := NewTracker()

	if tracker.Ready() {
		t.Fatalf("expected tracker not ready before start")
	}

	tracker.MarkStarted()
	if !tracker.Ready() {
		t.Fatalf("expected tracker ready after start")
	}
}

func TestTracker_RecordsEvents(t *testing.T) {
	tracker := NewTracker()

	snapshot := tracker.Snapshot()
	if snapshot.LastEventTime != nil || snapshot.EventsDispatched != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}

	tracker.RecordEvent(3)
	tracker.RecordEvent(2)

	snapshot = tracker.Snapshot()
	if snapshot.LastEventTime == nil {
		t.Fatalf("expected last event time to be set")
	}
	if snapshot.EventsDispatched != 2 {
		t.Fatalf("expected 2 events, got %d", snapshot.EventsDispatched)
	}
	if snapshot.ActiveMonitors != 2 {
		t.Fatalf("expected 2 active monitors, got %d", snapshot.ActiveMonitors)
	}
}

func TestTracker_NilSafe(t *testing.T) {
	var tracker *Tracker
	tracker.MarkStarted()
	tracker.RecordEvent(1)
	if tracker.Ready() {
		t.Fatalf("nil tracker must not be ready")
	}
	if snapshot := tracker.Snapshot(); snapshot.EventsDispatched != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snapshot)
	}
}

func TestHandlers_StatusCodes(t *testing.T) {
	tracker := NewTracker()

	for _, handler := range []http.HandlerFunc{HealthHandler(tracker), ReadyHandler(tracker)} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 before start, got %d", rec.Code)
		}
	}

	tracker.MarkStarted()
	tracker.RecordEvent(1)

	for _, handler := range []http.HandlerFunc{HealthHandler(tracker), ReadyHandler(tracker)} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 after start, got %d", rec.Code)
		}

		var snapshot Snapshot
		if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snapshot.EventsDispatched != 1 || snapshot.ActiveMonitors != 1 {
			t.Fatalf("unexpected snapshot: %+v", snapshot)
		}
	}
}

func TestHandlers_NilTracker(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for nil tracker, got %d", rec.Code)
	}
}
