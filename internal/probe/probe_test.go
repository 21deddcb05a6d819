package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nkovacs/hospital/internal/replica"
)

func serverPort(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	_, portText, err := net.SplitHostPort(ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split server address: %v", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return port
}

func TestHTTPProber_NoPortsIsGreen(t *testing.T) {
	p := NewHTTPProber(time.Second)
	h := replica.NewHandle("api", "api-1", nil)

	if !p.Probe(context.Background(), h, "/health") {
		t.Fatalf("expected replica without ports to be green")
	}
}

func TestHTTPProber_SuccessStatusIsGreen(t *testing.T) {
	var path atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := NewHTTPProber(time.Second)
	h := replica.NewHandle("api", "api-1", []replica.Port{{Number: serverPort(t, ts)}})

	if !p.Probe(context.Background(), h, "/health") {
		t.Fatalf("expected green probe")
	}
	if got := path.Load(); got != "/health" {
		t.Fatalf("expected probe against /health, got %v", got)
	}
}

func TestHTTPProber_NonSuccessStatusIsRed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := NewHTTPProber(time.Second)
	h := replica.NewHandle("api", "api-1", []replica.Port{{Number: serverPort(t, ts)}})

	if p.Probe(context.Background(), h, "/health") {
		t.Fatalf("expected red probe for 503")
	}
}

func TestHTTPProber_ConnectionRefusedIsRed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	port := serverPort(t, ts)
	ts.Close()

	p := NewHTTPProber(time.Second)
	h := replica.NewHandle("api", "api-1", []replica.Port{{Number: port}})

	if p.Probe(context.Background(), h, "/health") {
		t.Fatalf("expected red probe for refused connection")
	}
}

func TestHTTPProber_FirstFailureShortCircuits(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	var healthyCalls atomic.Int64
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthyCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	p := NewHTTPProber(time.Second)
	h := replica.NewHandle("api", "api-1", []replica.Port{
		{Number: serverPort(t, failing)},
		{Number: serverPort(t, healthy)},
	})

	if p.Probe(context.Background(), h, "/health") {
		t.Fatalf("expected red probe")
	}
	if healthyCalls.Load() != 0 {
		t.Fatalf("expected second port to be skipped, got %d calls", healthyCalls.Load())
	}
}

func TestHTTPProber_AllPortsMustBeGreen(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	first := httptest.NewServer(handler)
	defer first.Close()
	second := httptest.NewServer(handler)
	defer second.Close()

	p := NewHTTPProber(time.Second)
	h := replica.NewHandle("api", "api-1", []replica.Port{
		{Number: serverPort(t, first), Protocol: "http"},
		{Number: serverPort(t, second)},
	})

	if !p.Probe(context.Background(), h, "/health") {
		t.Fatalf("expected green probe")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected both ports probed, got %d calls", calls.Load())
	}
}

func TestHTTPProber_CancelledContextIsRed(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		ts.Close()
	}()

	p := NewHTTPProber(5 * time.Second)
	h := replica.NewHandle("api", "api-1", []replica.Port{{Number: serverPort(t, ts)}})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		result <- p.Probe(ctx, h, "/health")
	}()

	cancel()

	select {
	case green := <-result:
		if green {
			t.Fatalf("expected red probe after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("probe did not abort promptly on cancellation")
	}
}
