package feed

import (
	"context"
	"testing"
	"time"
)

func TestDemoSource_EmitsWatchedMarkets(t *testing.T) {
	demo := NewDemoSource(DemoConfig{
		Interval: 10 * time.Millisecond,
		Markets:  []string{"AAA", "BBB"},
	}, nil)

	if err := demo.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopSource(t, demo)

	seen := make(map[string]int)
	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case u := <-demo.Updates():
			if err := u.Validate(); err != nil {
				t.Fatalf("Validate() error = %v for %+v", err, u)
			}
			if u.YesBid > u.YesAsk {
				t.Fatalf("crossed quote %d/%d", u.YesBid, u.YesAsk)
			}
			if u.ClosesAt <= u.Timestamp {
				t.Fatalf("ClosesAt %d not after Timestamp %d", u.ClosesAt, u.Timestamp)
			}
			seen[u.Ticker]++
		case <-deadline:
			t.Fatalf("timeout, saw %v", seen)
		}
	}

	if seen["AAA"] == 0 || seen["BBB"] == 0 {
		t.Errorf("updates per ticker = %v, want both > 0", seen)
	}
}

func TestDemoSource_WatchUnwatch(t *testing.T) {
	demo := NewDemoSource(DemoConfig{Markets: []string{"AAA"}}, nil)

	demo.Watch("CCC")
	demo.Watch("BBB")
	demo.Watch("CCC")

	want := []string{"AAA", "BBB", "CCC"}
	got := demo.Watched()
	if len(got) != len(want) {
		t.Fatalf("len(Watched()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Watched()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	demo.Unwatch("AAA")
	got = demo.Watched()
	if len(got) != 2 || got[0] != "BBB" {
		t.Errorf("Watched() = %v, want [BBB CCC]", got)
	}
}

func TestDemoSource_State(t *testing.T) {
	demo := NewDemoSource(DemoConfig{}, nil)

	if got := demo.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
}

func TestDemoSource_StopHaltsDelivery(t *testing.T) {
	demo := NewDemoSource(DemoConfig{
		Interval: 5 * time.Millisecond,
		Markets:  []string{"AAA"},
	}, nil)

	if err := demo.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-demo.Updates():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first update")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := demo.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Drain whatever was buffered before the stop.
	for {
		select {
		case <-demo.Updates():
			continue
		default:
		}
		break
	}

	time.Sleep(30 * time.Millisecond)
	select {
	case u := <-demo.Updates():
		t.Errorf("update after Stop: %+v", u)
	default:
	}
}
