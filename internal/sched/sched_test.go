package sched

import (
	"testing"

	"slopos/internal/task"
	"slopos/utils"
)

type fakeIC struct{ enabled bool }

func (f *fakeIC) InterruptsEnabled() bool { return f.enabled }
func (f *fakeIC) DisableInterrupts()      { f.enabled = false }
func (f *fakeIC) EnableInterrupts()       { f.enabled = true }

func testIC() utils.InterruptController { return &fakeIC{enabled: true} }

type countingSwitcher struct {
	switches int
}

func (c *countingSwitcher) Switch(from, to *task.TCB) {
	c.switches++
}

func newTestScheduler(capacity int) (*Scheduler, *task.Table, *countingSwitcher) {
	ic := testIC()
	tasks := task.NewTable(capacity, ic)
	ledger := NewLedger(ic)
	sw := &countingSwitcher{}
	s := New(tasks, ledger, sw, ic)
	return s, tasks, sw
}

func TestScheduleTask_ThenSchedule_PicksIt(t *testing.T) {
	s, tasks, sw := newTestScheduler(2)
	id := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)

	s.ScheduleTask(id, 5)
	s.Schedule()

	if s.Current() != id {
		t.Errorf("Current() = %d, want %d", s.Current(), id)
	}
	if sw.switches != 1 {
		t.Errorf("switches = %d, want 1", sw.switches)
	}
}

func TestSchedule_PrefersHigherPriority(t *testing.T) {
	s, tasks, _ := newTestScheduler(3)
	low := tasks.Create("low", nil, 0, 1, 0, task.StackRegion{}, nil, 0)
	high := tasks.Create("high", nil, 0, 9, 0, task.StackRegion{}, nil, 0)

	s.ScheduleTask(low, 1)
	s.ScheduleTask(high, 9)
	s.Schedule()

	if s.Current() != high {
		t.Errorf("Current() = %d, want the higher-priority task %d", s.Current(), high)
	}
}

func TestSchedule_FIFOWithinPriority(t *testing.T) {
	s, tasks, _ := newTestScheduler(3)
	first := tasks.Create("first", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	second := tasks.Create("second", nil, 0, 5, 0, task.StackRegion{}, nil, 0)

	s.ScheduleTask(first, 5)
	s.ScheduleTask(second, 5)
	s.Schedule()

	if s.Current() != first {
		t.Errorf("Current() = %d, want FIFO-first task %d", s.Current(), first)
	}
}

func TestCurrentNeverInReadyQueue(t *testing.T) {
	s, tasks, _ := newTestScheduler(2)
	id := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(id, 5)
	s.Schedule()

	// Re-enqueueing current should be a no-op per the invariant.
	s.ScheduleTask(id, 5)
	st := s.mu.Lock()
	count := 0
	for _, e := range s.ready {
		if e.id == id {
			count++
		}
	}
	s.mu.Unlock(st)
	if count != 0 {
		t.Errorf("current task appeared in ready queue %d times, want 0", count)
	}
}

func TestYield_RequeuesRunningCaller(t *testing.T) {
	s, tasks, _ := newTestScheduler(3)
	a := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	b := tasks.Create("b", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(a, 5)
	s.ScheduleTask(b, 5)
	s.Schedule() // current = a

	s.Yield(a, 5) // a re-enqueued, then schedule -> current = b

	if s.Current() != b {
		t.Errorf("Current() after yield = %d, want %d", s.Current(), b)
	}
}

func TestBlockWakeThroughScheduler(t *testing.T) {
	s, tasks, _ := newTestScheduler(2)
	id := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(id, 5)
	s.Schedule() // current = id, Running

	q := task.NewWaitQueue(testIC())
	if err := tasks.Block(id, q); err != nil {
		t.Fatalf("Block: %v", err)
	}

	if err := s.UnblockTask(id, 5); err != nil {
		t.Fatalf("UnblockTask: %v", err)
	}
	tcb, _ := tasks.Lookup(id)
	if tcb.Snapshot() != task.Ready {
		t.Errorf("state after unblock = %v, want Ready", tcb.Snapshot())
	}
}

func TestSleepTask_ClampsToMax(t *testing.T) {
	s, tasks, _ := newTestScheduler(1)
	id := tasks.Create("a", nil, 0, 0, 0, task.StackRegion{}, nil, 0)
	tcb, _ := tasks.Lookup(id)
	tcb.MarkRunning()

	if err := s.SleepTask(id, 999999); err != nil {
		t.Fatalf("SleepTask: %v", err)
	}
	st := s.mu.Lock()
	remaining := s.sleeping[id]
	s.mu.Unlock(st)
	if remaining != MaxSleepMS {
		t.Errorf("remaining = %d, want clamp to %d", remaining, MaxSleepMS)
	}
}

func TestTimerTick_WakesExpiredSleeper(t *testing.T) {
	s, tasks, _ := newTestScheduler(1)
	id := tasks.Create("a", nil, 0, 3, 0, task.StackRegion{}, nil, 0)
	tcb, _ := tasks.Lookup(id)
	tcb.MarkRunning()

	if err := s.SleepTask(id, 1); err != nil {
		t.Fatalf("SleepTask: %v", err)
	}
	s.TimerTick()

	if tcb.Snapshot() != task.Ready {
		t.Errorf("state after tick-expire = %v, want Ready", tcb.Snapshot())
	}
	st := s.mu.Lock()
	_, stillSleeping := s.sleeping[id]
	s.mu.Unlock(st)
	if stillSleeping {
		t.Error("task still in sleeping set after expiry")
	}
}

func TestHandlePostIRQ_FiresOnlyWhenPreemptingAndTicked(t *testing.T) {
	s, tasks, sw := newTestScheduler(2)
	id := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(id, 5)

	s.HandlePostIRQ() // no tick flag yet -> no schedule
	if sw.switches != 0 {
		t.Fatalf("switches = %d before any tick, want 0", sw.switches)
	}

	s.TimerTick()
	s.HandlePostIRQ()
	if sw.switches != 1 {
		t.Errorf("switches after ticked post-IRQ = %d, want 1", sw.switches)
	}
}

func TestHandlePostIRQ_NoOpWhenPreemptionDisabled(t *testing.T) {
	s, tasks, sw := newTestScheduler(2)
	id := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(id, 5)
	s.SetPreemptionEnabled(false)

	s.TimerTick()
	s.HandlePostIRQ()
	if sw.switches != 0 {
		t.Errorf("switches = %d with preemption disabled, want 0", sw.switches)
	}
}

func TestSolvencyPanicsOnInsolventLedger(t *testing.T) {
	s, tasks, _ := newTestScheduler(1)
	id := tasks.Create("a", nil, 0, 0, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(id, 0)

	for i := 0; i < 2; i++ {
		s.ledger.AwardLoss() // 10 -> 0 -> -10
	}

	defer func() {
		r := recover()
		if r != DisgraceMessage {
			t.Fatalf("panic = %v, want %q", r, DisgraceMessage)
		}
	}()
	s.Schedule()
}

func TestApplyOutcome_AwardsLedgerAndFiresHooks(t *testing.T) {
	s, _, _ := newTestScheduler(1)
	var gotTaskID uint64
	var gotWin bool
	var gotBalance int64
	s.RegisterOutcomeHook(func(taskID uint64, isWin bool, balance int64) {
		gotTaskID = taskID
		gotWin = isWin
		gotBalance = balance
	})

	s.ApplyOutcome(7, true)

	if s.ledger.Balance() != 20 {
		t.Errorf("balance = %d, want 20", s.ledger.Balance())
	}
	if gotTaskID != 7 || !gotWin {
		t.Errorf("hook saw (%d, %v), want (7, true)", gotTaskID, gotWin)
	}
	if gotBalance != 20 {
		t.Errorf("hook saw balance %d, want 20", gotBalance)
	}
}

func TestStats_ReflectsCounters(t *testing.T) {
	s, tasks, _ := newTestScheduler(2)
	id := tasks.Create("a", nil, 0, 5, 0, task.StackRegion{}, nil, 0)
	s.ScheduleTask(id, 5)
	s.Schedule()

	stats := s.Stats()
	if stats.ContextSwitches != 1 {
		t.Errorf("ContextSwitches = %d, want 1", stats.ContextSwitches)
	}
	if stats.ScheduleCalls != 1 {
		t.Errorf("ScheduleCalls = %d, want 1", stats.ScheduleCalls)
	}
}
