package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{}, nil)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		sm.RegisterCloser(CloserFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("close order = %v, want [3 2 1]", order)
	}
	if !sm.IsShuttingDown() {
		t.Error("expected IsShuttingDown after Shutdown")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{}, nil)
	calls := 0
	boom := errors.New("boom")
	sm.RegisterCloser(CloserFunc(func() error {
		calls++
		return boom
	}))

	err1 := sm.Shutdown(context.Background(), "first")
	err2 := sm.Shutdown(context.Background(), "second")
	if calls != 1 {
		t.Errorf("closer called %d times, want 1", calls)
	}
	if !errors.Is(err1, boom) || !errors.Is(err2, boom) {
		t.Errorf("expected both calls to report close error, got %v and %v", err1, err2)
	}
}

func TestMiddlewareRejectsDuringShutdown(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{}, nil)
	h := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.InFlightCount() != 1 {
			t.Errorf("InFlightCount = %d during request, want 1", sm.InFlightCount())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if sm.InFlightCount() != 0 {
		t.Errorf("InFlightCount = %d after request, want 0", sm.InFlightCount())
	}

	_ = sm.Shutdown(context.Background(), "test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d during shutdown, want 503", rec.Code)
	}
}

func TestDrainTimesOut(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 60 * time.Millisecond}, nil)
	if !sm.TrackRequest() {
		t.Fatal("TrackRequest rejected before shutdown")
	}
	defer sm.UntrackRequest()

	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected drain timeout error")
	}
}

func TestServeStopsOnShutdown(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{}, nil)
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- Serve(srv, sm) }()

	time.Sleep(50 * time.Millisecond)
	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}
