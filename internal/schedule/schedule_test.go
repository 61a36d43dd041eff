package schedule

import (
	"reflect"
	"testing"
	"time"
)

func TestManualRunsInDueOrder(t *testing.T) {
	t.Parallel()

	clock := NewManual()
	var got []string
	clock.After(300*time.Millisecond, func() { got = append(got, "c") })
	clock.After(100*time.Millisecond, func() { got = append(got, "a") })
	clock.After(100*time.Millisecond, func() { got = append(got, "b") })

	clock.Advance(99 * time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("ran early: %v", got)
	}
	clock.Advance(time.Millisecond)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("order: got %v", got)
	}
	clock.Advance(time.Second)
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order: got %v", got)
	}
	if clock.Now() != 1100*time.Millisecond {
		t.Fatalf("now: got %v", clock.Now())
	}
}

func TestManualChainsTasksScheduledByCallbacks(t *testing.T) {
	t.Parallel()

	clock := NewManual()
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		if ticks < 5 {
			clock.After(30*time.Millisecond, tick)
		}
	}
	clock.After(30*time.Millisecond, tick)
	clock.Advance(150 * time.Millisecond)
	if ticks != 5 {
		t.Fatalf("ticks: got %d want 5", ticks)
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending: got %d", clock.Pending())
	}
}

func TestManualCancel(t *testing.T) {
	t.Parallel()

	clock := NewManual()
	ran := false
	task := clock.After(time.Second, func() { ran = true })
	if !task.Cancel() {
		t.Fatalf("first cancel should succeed")
	}
	if task.Cancel() {
		t.Fatalf("second cancel should report false")
	}
	clock.Advance(2 * time.Second)
	if ran {
		t.Fatalf("cancelled task ran")
	}
}

func TestGroupStopCancelsOutstanding(t *testing.T) {
	t.Parallel()

	clock := NewManual()
	group := NewGroup(clock)
	ran := 0
	group.After(10*time.Millisecond, func() { ran++ })
	group.After(20*time.Millisecond, func() { ran++ })
	clock.Advance(10 * time.Millisecond)
	if ran != 1 || group.Len() != 1 {
		t.Fatalf("after first tick: ran=%d len=%d", ran, group.Len())
	}
	if n := group.Stop(); n != 1 {
		t.Fatalf("Stop cancelled %d tasks, want 1", n)
	}
	group.After(time.Millisecond, func() { ran++ })
	clock.Advance(time.Second)
	if ran != 1 {
		t.Fatalf("tasks ran after stop: %d", ran)
	}
	if !group.Stopped() {
		t.Fatalf("group should report stopped")
	}
}

func TestGroupTaskCancelForgetsTask(t *testing.T) {
	t.Parallel()

	clock := NewManual()
	group := NewGroup(clock)
	task := group.After(time.Second, func() { t.Fatalf("cancelled task ran") })
	if !task.Cancel() {
		t.Fatalf("cancel should succeed")
	}
	if group.Len() != 0 {
		t.Fatalf("len after cancel: %d", group.Len())
	}
	clock.Advance(2 * time.Second)
}

func TestLoopPostsCallbacks(t *testing.T) {
	t.Parallel()

	posted := make(chan func(), 4)
	loop := NewLoop(func(fn func()) { posted <- fn })
	done := make(chan struct{})
	loop.After(time.Millisecond, func() { close(done) })

	select {
	case fn := <-posted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatalf("callback never posted")
	}
	select {
	case <-done:
	default:
		t.Fatalf("posted callback did not run task")
	}
}

func TestLoopCancelAfterPostDropsCallback(t *testing.T) {
	t.Parallel()

	posted := make(chan func(), 1)
	loop := NewLoop(func(fn func()) { posted <- fn })
	ran := false
	task := loop.After(time.Millisecond, func() { ran = true })

	var fn func()
	select {
	case fn = <-posted:
	case <-time.After(2 * time.Second):
		t.Fatalf("callback never posted")
	}
	if !task.Cancel() {
		t.Fatalf("cancel before delivery should succeed")
	}
	fn()
	if ran {
		t.Fatalf("cancelled callback ran")
	}
}
