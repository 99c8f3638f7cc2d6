package subscription

import (
	"errors"
	"testing"

	"github.com/odin-labs/signalbus/internal/topic"
)

func TestRoundTripScenarioS1(t *testing.T) {
	reg := topic.NewRegistry(10)
	tp := reg.GetOrAdd("t")
	for _, p := range []string{"a", "b", "c"} {
		tp.Store.Add("t", []byte(p))
	}

	var got Result
	calls := 0
	sub := New("sub-1", 100, func(r Result) (bool, error) {
		calls++
		got = r
		return true, nil
	})
	sub.AddOrUpdateCursor("t", 0, tp)

	if err := sub.WorkAsync(reg); err != nil {
		t.Fatalf("WorkAsync() error = %v", err)
	}

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if len(got.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(got.Items))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(got.Items[i].Payload) != want {
			t.Errorf("Items[%d] = %q, want %q", i, got.Items[i].Payload, want)
		}
	}
	if got.Cursor != "t,0000000000000003" {
		t.Fatalf("Cursor = %q, want %q", got.Cursor, "t,0000000000000003")
	}
}

func TestResumeScenarioS2(t *testing.T) {
	reg := topic.NewRegistry(10)
	tp := reg.GetOrAdd("t")
	for _, p := range []string{"a", "b", "c"} {
		tp.Store.Add("t", []byte(p))
	}

	var got Result
	sub := New("sub-2", 100, func(r Result) (bool, error) {
		got = r
		return true, nil
	})
	sub.AddOrUpdateCursor("t", 1, tp)

	if err := sub.WorkAsync(reg); err != nil {
		t.Fatalf("WorkAsync() error = %v", err)
	}

	if len(got.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(got.Items))
	}
	if string(got.Items[0].Payload) != "b" || string(got.Items[1].Payload) != "c" {
		t.Fatalf("Items = %+v, want [b c]", got.Items)
	}
	if got.Cursor != "t,0000000000000003" {
		t.Fatalf("Cursor = %q, want %q", got.Cursor, "t,0000000000000003")
	}
}

func TestTwoTopicsScenarioS4(t *testing.T) {
	reg := topic.NewRegistry(10)
	tx := reg.GetOrAdd("x")
	ty := reg.GetOrAdd("y")

	tx.Store.Add("x", []byte("x0"))
	tx.Store.Add("x", []byte("x1"))
	ty.Store.Add("y", []byte("y0"))

	var got Result
	sub := New("sub-4", 100, func(r Result) (bool, error) {
		got = r
		return true, nil
	})
	sub.AddOrUpdateCursor("x", 0, tx)
	sub.AddOrUpdateCursor("y", 0, ty)

	if err := sub.WorkAsync(reg); err != nil {
		t.Fatalf("WorkAsync() error = %v", err)
	}

	if got.TotalCount != 3 {
		t.Fatalf("TotalCount = %d, want 3", got.TotalCount)
	}
	if got.Cursor != "x,0000000000000002|y,0000000000000001" {
		t.Fatalf("Cursor = %q", got.Cursor)
	}
}

func TestCallbackStopScenarioS5(t *testing.T) {
	reg := topic.NewRegistry(10)
	tp := reg.GetOrAdd("t")
	tp.Store.Add("t", []byte("a"))

	var results []Result
	sub := New("sub-5", 100, func(r Result) (bool, error) {
		results = append(results, r)
		return false, nil
	})
	sub.AddOrUpdateCursor("t", 0, tp)

	if err := sub.WorkAsync(reg); err != nil {
		t.Fatalf("WorkAsync() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("callback invoked %d times, want 2 (one batch + one terminal)", len(results))
	}
	if len(results[0].Items) != 1 {
		t.Fatalf("first batch Items = %+v, want 1 item", results[0].Items)
	}
	if len(results[1].Items) != 0 {
		t.Fatalf("terminal batch Items = %+v, want none", results[1].Items)
	}
	if !sub.Disposed() {
		t.Fatal("subscription should be disposed after callback returns false")
	}

	// Publishing more and pumping again must not invoke the callback.
	tp.Store.Add("t", []byte("b"))
	if err := sub.WorkAsync(reg); err != nil {
		t.Fatalf("WorkAsync() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("callback invoked again after disposal: %d calls", len(results))
	}
}

func TestCallbackFaultDoesNotDispose(t *testing.T) {
	reg := topic.NewRegistry(10)
	tp := reg.GetOrAdd("t")
	tp.Store.Add("t", []byte("a"))

	boom := errors.New("boom")
	sub := New("sub-6", 100, func(r Result) (bool, error) {
		return true, boom
	})
	sub.AddOrUpdateCursor("t", 0, tp)

	if err := sub.WorkAsync(reg); !errors.Is(err, boom) {
		t.Fatalf("WorkAsync() error = %v, want %v", err, boom)
	}
	if sub.Disposed() {
		t.Fatal("a callback fault must not dispose the subscription")
	}
}

func TestAddOrUpdateAndRemoveCursor(t *testing.T) {
	sub := New("sub-7", 100, func(Result) (bool, error) { return true, nil })

	if !sub.AddOrUpdateCursor("t", 5, nil) {
		t.Fatal("first AddOrUpdateCursor should succeed")
	}
	if sub.AddOrUpdateCursor("t", 10, nil) {
		t.Fatal("second AddOrUpdateCursor for same key should report false")
	}
	if !sub.UpdateCursor("t", 10) {
		t.Fatal("UpdateCursor on existing key should succeed")
	}
	if sub.UpdateCursor("missing", 1) {
		t.Fatal("UpdateCursor on missing key should report false")
	}

	sub.RemoveCursor("t")
	if sub.UpdateCursor("t", 1) {
		t.Fatal("cursor should be gone after RemoveCursor")
	}
}

func TestSetQueuedCollapsesDuplicateSchedules(t *testing.T) {
	sub := New("sub-8", 100, func(Result) (bool, error) { return true, nil })

	if !sub.SetQueued() {
		t.Fatal("first SetQueued should transition 0->1")
	}
	if sub.SetQueued() {
		t.Fatal("second SetQueued while already queued should report false")
	}
	sub.UnsetQueued()
	if !sub.SetQueued() {
		t.Fatal("SetQueued after UnsetQueued should transition again")
	}
}

func TestWorkAsyncReentrancyGuard(t *testing.T) {
	reg := topic.NewRegistry(10)
	tp := reg.GetOrAdd("t")
	tp.Store.Add("t", []byte("a"))

	blocked := make(chan struct{})
	release := make(chan struct{})
	sub := New("sub-9", 100, func(Result) (bool, error) {
		close(blocked)
		<-release
		return true, nil
	})
	sub.AddOrUpdateCursor("t", 0, tp)

	done := make(chan error, 1)
	go func() { done <- sub.WorkAsync(reg) }()

	<-blocked
	if err := sub.WorkAsync(reg); err != nil {
		t.Fatalf("reentrant WorkAsync() error = %v, want nil (no-op)", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("WorkAsync() error = %v", err)
	}
}
