package ticker

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTicker_DeliversTicksToAllSubscribers(t *testing.T) {
	tk := New(10*time.Millisecond, nil)

	var first, second atomic.Int64
	tk.OnTick(func() { first.Add(1) })
	tk.OnTick(func() { second.Add(1) })

	tk.Start()
	time.Sleep(55 * time.Millisecond)
	tk.Stop()

	if first.Load() == 0 || second.Load() == 0 {
		t.Fatalf("expected both subscribers to receive ticks, got %d/%d", first.Load(), second.Load())
	}
	if first.Load() != second.Load() {
		t.Errorf("subscribers diverged: %d vs %d", first.Load(), second.Load())
	}
}

func TestTicker_StopHaltsEmission(t *testing.T) {
	tk := New(5*time.Millisecond, nil)

	var count atomic.Int64
	tk.OnTick(func() { count.Add(1) })

	tk.Start()
	time.Sleep(30 * time.Millisecond)
	tk.Stop()

	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	if count.Load() != after {
		t.Fatalf("ticks delivered after Stop: %d -> %d", after, count.Load())
	}
}

func TestTicker_StartStopIdempotent(t *testing.T) {
	tk := New(5*time.Millisecond, nil)

	var count atomic.Int64
	tk.OnTick(func() { count.Add(1) })

	tk.Start()
	tk.Start()
	time.Sleep(26 * time.Millisecond)
	tk.Stop()
	tk.Stop()

	// 双重 Start 不得产生第二个派发循环。
	if got := count.Load(); got > 8 {
		t.Fatalf("duplicate start produced extra ticks: %d", got)
	}

	tk.Start()
	time.Sleep(12 * time.Millisecond)
	tk.Stop()
	if count.Load() == 0 {
		t.Fatalf("restart after stop must emit again")
	}
}

func TestTicker_OffTickStopsDelivery(t *testing.T) {
	tk := New(5*time.Millisecond, nil)

	var kept, removed atomic.Int64
	tk.OnTick(func() { kept.Add(1) })
	id := tk.OnTick(func() { removed.Add(1) })
	tk.OffTick(id)
	tk.OffTick(id) // 重复注销为空操作

	tk.Start()
	time.Sleep(30 * time.Millisecond)
	tk.Stop()

	if removed.Load() != 0 {
		t.Fatalf("removed subscriber still received %d ticks", removed.Load())
	}
	if kept.Load() == 0 {
		t.Fatalf("remaining subscriber received no ticks")
	}
}

func TestTicker_DispatchIsSerial(t *testing.T) {
	tk := New(2*time.Millisecond, nil)

	var inFlight, overlapped atomic.Int64
	tk.OnTick(func() {
		if inFlight.Add(1) > 1 {
			overlapped.Add(1)
		}
		time.Sleep(6 * time.Millisecond) // 慢于触发间隔
		inFlight.Add(-1)
	})

	tk.Start()
	time.Sleep(40 * time.Millisecond)
	tk.Stop()

	if overlapped.Load() != 0 {
		t.Fatalf("ticks overlapped %d times", overlapped.Load())
	}
}
