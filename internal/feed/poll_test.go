package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shieldwatch/observer/internal/model"
)

const bookBody = `{
	"market": {
		"ticker": "INXD-TEST",
		"yes_bid": 47,
		"yes_ask": 53,
		"ts": 1756100000000001,
		"signal": "CAUTION",
		"reason": "ttc_spread",
		"closes_at": 1756103600000000
	},
	"meta": {"poll_ms": 18.5, "compute_ms": 2.25}
}`

func TestPollClient_Book(t *testing.T) {
	var gotPath, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(bookBody))
	}))
	defer server.Close()

	client := NewPollClient(server.URL, "sekrit")

	u, err := client.Book(context.Background(), "INXD-TEST")
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	if gotPath != "/v1/markets/INXD-TEST/book" {
		t.Errorf("path = %q, want /v1/markets/INXD-TEST/book", gotPath)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer sekrit")
	}

	if u.Ticker != "INXD-TEST" {
		t.Errorf("Ticker = %q, want INXD-TEST", u.Ticker)
	}
	if u.YesBid != 47 || u.YesAsk != 53 {
		t.Errorf("quote = %d/%d, want 47/53", u.YesBid, u.YesAsk)
	}
	if u.Signal != model.SignalCaution {
		t.Errorf("Signal = %q, want %q", u.Signal, model.SignalCaution)
	}
	if u.Reason != model.ReasonTTCSpread {
		t.Errorf("Reason = %q, want %q", u.Reason, model.ReasonTTCSpread)
	}
	if u.ClosesAt != 1756103600000000 {
		t.Errorf("ClosesAt = %d, want 1756103600000000", u.ClosesAt)
	}
	if u.PollMs != 18.5 || u.ComputeMs != 2.25 {
		t.Errorf("stage latencies = %v/%v, want 18.5/2.25", u.PollMs, u.ComputeMs)
	}
	if err := u.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestPollClient_RetriesOnServerError(t *testing.T) {
	var attempts atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(bookBody))
	}))
	defer server.Close()

	client := NewPollClient(server.URL, "", WithRetries(3, time.Millisecond))

	u, err := client.Book(context.Background(), "INXD-TEST")
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if u.Ticker != "INXD-TEST" {
		t.Errorf("Ticker = %q, want INXD-TEST", u.Ticker)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestPollClient_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "no such market", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewPollClient(server.URL, "", WithRetries(3, time.Millisecond))

	_, err := client.Book(context.Background(), "MISSING")
	if err == nil {
		t.Fatal("Book() error = nil, want APIError")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestPollClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "still broken", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewPollClient(server.URL, "", WithRetries(2, time.Millisecond))

	_, err := client.Book(context.Background(), "INXD-TEST")
	if err == nil {
		t.Fatal("Book() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("error = %v, want max retries exceeded", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error chain missing *APIError: %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", apiErr.StatusCode)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestManager_PollCycleDelivers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bookBody))
	}))
	defer server.Close()

	poll := NewPollClient(server.URL, "")
	mgr := NewManager(ManagerConfig{
		WSURL:             "ws://localhost:12345",
		ReconnectBaseWait: time.Hour, // keep the push loop out of the way
		PollInterval:      20 * time.Millisecond,
	}, poll, nil, nil)
	mgr.Watch("INXD-TEST")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopSource(t, mgr)

	select {
	case u := <-mgr.Updates():
		if u.Ticker != "INXD-TEST" {
			t.Errorf("Ticker = %q, want INXD-TEST", u.Ticker)
		}
		if u.PollMs != 18.5 {
			t.Errorf("PollMs = %v, want 18.5", u.PollMs)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for polled update")
	}
}
