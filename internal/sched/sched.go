// Package sched implements component E: the ready queue, the
// schedule/yield/block/wake surface, the post-IRQ hook, and the W/L
// currency ledger with its solvency check (§4.E, §3 "Scheduler state",
// §3 "W/L currency ledger").
//
// Grounded on hooks/hooks.go (teacher) for the post-IRQ/lifecycle-hook
// execution shape (prestart/poststart generalizing to the post-IRQ hook
// and the roulette outcome hook), and linux/cgroup.go (teacher) for the
// bounded-resource-accounting shape (cgroup limits generalizing to the
// ledger and its solvency panic).
package sched

import (
	"fmt"

	"slopos/internal/task"
	"slopos/utils"
)

// MaxSleepMS bounds a single sleep_ms call (§4.E "Cancellation /
// timeout").
const MaxSleepMS = 60000

// DisgraceMessage is the panic text the solvency check raises when the
// W/L ledger crosses to non-positive (§3 "W/L currency ledger").
const DisgraceMessage = "the house always wins: ledger insolvent, halting"

// ContextSwitcher performs the machine-level "save current, install
// new" primitive (§4.D); the scheduler calls it once per schedule()
// that changes current. A real build backs this with an assembly
// trampoline; tests back it with a no-op or a call-counting fake.
type ContextSwitcher interface {
	Switch(from, to *task.TCB)
}

// Ledger is the W/L currency ledger: a single signed balance, mutated
// only by AwardWin/AwardLoss (§3).
type Ledger struct {
	mu      *utils.SpinLock
	balance int64
	started bool
}

// NewLedger returns a ledger initialized to 10, per §3, guarded by a
// SpinLock over ic (§5 "Shared-resource policy").
func NewLedger(ic utils.InterruptController) *Ledger {
	return &Ledger{balance: 10, started: true, mu: utils.NewSpinLock(ic)}
}

// AwardWin adds 10 to the balance.
func (l *Ledger) AwardWin() {
	st := l.mu.Lock()
	defer l.mu.Unlock(st)
	l.balance += 10
}

// AwardLoss subtracts 10 from the balance.
func (l *Ledger) AwardLoss() {
	st := l.mu.Lock()
	defer l.mu.Unlock(st)
	l.balance -= 10
}

// Balance returns the current balance.
func (l *Ledger) Balance() int64 {
	st := l.mu.Lock()
	defer l.mu.Unlock(st)
	return l.balance
}

// Insolvent reports whether the balance has crossed to <= 0 while the
// ledger is initialized.
func (l *Ledger) Insolvent() bool {
	st := l.mu.Lock()
	defer l.mu.Unlock(st)
	return l.started && l.balance <= 0
}

// readyEntry pairs a task id with the priority it was enqueued at, so a
// priority change after enqueue doesn't reorder an already-queued task
// (matches a plain FIFO-per-class array of references, §3).
type readyEntry struct {
	id       uint64
	priority uint8
}

// Scheduler owns the ready queue, current-task pointer, counters, the
// ledger, and the post-IRQ tick flag (§3 "Scheduler state", §4.E).
type Scheduler struct {
	mu *utils.SpinLock

	tasks   *task.Table
	ledger  *Ledger
	switcher ContextSwitcher

	ready   []readyEntry
	current uint64 // task.InvalidTaskID when idle

	preemptionEnabled bool
	tickFlag          bool
	tickCount         uint64

	sleeping map[uint64]uint64 // task id -> remaining ticks

	contextSwitches uint64
	yields          uint64
	scheduleCalls   uint64

	outcomeHook func(taskID uint64, isWin bool, balance int64)
}

// New returns a Scheduler bound to tasks and ledger, preemption enabled
// by default (§4.E's post-IRQ hook only matters once preemption is on).
// ic is the interrupt controller its SpinLock disables against (§5
// "Shared-resource policy").
func New(tasks *task.Table, ledger *Ledger, switcher ContextSwitcher, ic utils.InterruptController) *Scheduler {
	return &Scheduler{
		mu:                utils.NewSpinLock(ic),
		tasks:             tasks,
		ledger:            ledger,
		switcher:          switcher,
		current:           task.InvalidTaskID,
		preemptionEnabled: true,
		sleeping:          map[uint64]uint64{},
	}
}

// SetPreemptionEnabled toggles timer-driven switching; voluntary Yield
// always works regardless (§3 invariant).
func (s *Scheduler) SetPreemptionEnabled(enabled bool) {
	st := s.mu.Lock()
	defer s.mu.Unlock(st)
	s.preemptionEnabled = enabled
}

// Current returns the currently running task id, or InvalidTaskID if idle.
func (s *Scheduler) Current() uint64 {
	st := s.mu.Lock()
	defer s.mu.Unlock(st)
	return s.current
}

// ScheduleTask inserts a newly created task into the ready queue
// (schedule_task, §4.E).
func (s *Scheduler) ScheduleTask(id uint64, priority uint8) {
	st := s.mu.Lock()
	defer s.mu.Unlock(st)
	s.enqueueLocked(id, priority)
}

func (s *Scheduler) enqueueLocked(id uint64, priority uint8) {
	// current is never present in the ready queue (§3 invariant).
	if id == s.current {
		return
	}
	s.ready = append(s.ready, readyEntry{id: id, priority: priority})
}

// pickLocked removes and returns the highest-priority, FIFO-within-class
// ready entry, or (0, false) if the queue is empty.
func (s *Scheduler) pickLocked() (uint64, bool) {
	if len(s.ready) == 0 {
		return 0, false
	}
	best := 0
	for i, e := range s.ready {
		if e.priority > s.ready[best].priority {
			best = i
		}
	}
	id := s.ready[best].id
	s.ready = append(s.ready[:best], s.ready[best+1:]...)
	return id, true
}

// Schedule picks the next ready task and performs a context switch if it
// differs from current (§4.E). It always runs the solvency check first.
func (s *Scheduler) Schedule() {
	s.checkSolvency()

	st := s.mu.Lock()
	s.scheduleCalls++
	next, ok := s.pickLocked()
	if !ok {
		s.mu.Unlock(st)
		return
	}
	prevID := s.current
	if next == prevID {
		s.mu.Unlock(st)
		return
	}
	s.current = next
	s.contextSwitches++
	s.mu.Unlock(st)

	var fromTCB, toTCB *task.TCB
	if prevID != task.InvalidTaskID {
		fromTCB, _ = s.tasks.Lookup(prevID)
	}
	toTCB, _ = s.tasks.Lookup(next)
	if toTCB != nil {
		toTCB.MarkRunning()
	}
	if s.switcher != nil {
		s.switcher.Switch(fromTCB, toTCB)
	}
}

// checkSolvency implements §4.E's "on every context switch, consult the
// ledger" rule, applied once per Schedule() call (which is the only path
// that performs a context switch).
func (s *Scheduler) checkSolvency() {
	if s.ledger != nil && s.ledger.Insolvent() {
		panic(DisgraceMessage)
	}
}

// Yield implements yield(): enqueues the caller (if still Running), then
// calls Schedule (§4.E).
func (s *Scheduler) Yield(callerID uint64, callerPriority uint8) {
	st := s.mu.Lock()
	s.yields++
	tcb, err := s.tasks.Lookup(callerID)
	s.mu.Unlock(st)
	requeued := false
	if err == nil && tcb.Snapshot() == task.Running {
		// The caller is usually current, which enqueueLocked skips, so it
		// is appended directly; Schedule removes it again if it is picked.
		st := s.mu.Lock()
		s.ready = append(s.ready, readyEntry{id: callerID, priority: callerPriority})
		s.mu.Unlock(st)
		tcb.MarkReady()
		requeued = true
	}
	s.Schedule()
	if requeued && s.Current() == callerID {
		tcb.MarkRunning()
	}
}

// UnblockTask implements unblock_task(): moves id from Blocked to Ready
// iff it is currently Blocked (§4.E).
func (s *Scheduler) UnblockTask(id uint64, priority uint8) error {
	if err := s.tasks.Wake(id); err != nil {
		return err
	}
	st := s.mu.Lock()
	s.enqueueLocked(id, priority)
	s.mu.Unlock(st)
	return nil
}

// SleepTask moves id to Sleeping for durationMS ticks worth of time,
// clamped to MaxSleepMS (sleep_ms, §4.F/§4.E). One tick is modeled as
// one millisecond for the purposes of timer_tick bookkeeping.
func (s *Scheduler) SleepTask(id uint64, durationMS uint64) error {
	if durationMS > MaxSleepMS {
		durationMS = MaxSleepMS
	}
	if err := s.tasks.Sleep(id); err != nil {
		return err
	}
	st := s.mu.Lock()
	s.sleeping[id] = durationMS
	s.mu.Unlock(st)
	return nil
}

// TimerTick implements timer_tick(): increments the tick counter,
// decrements sleep timers, wakes expired sleepers, and sets the flag
// handle_post_irq() consumes (§4.E).
func (s *Scheduler) TimerTick() {
	st := s.mu.Lock()
	s.tickCount++
	var expired []uint64
	for id, remaining := range s.sleeping {
		if remaining <= 1 {
			expired = append(expired, id)
			delete(s.sleeping, id)
		} else {
			s.sleeping[id] = remaining - 1
		}
	}
	s.tickFlag = true
	s.mu.Unlock(st)

	for _, id := range expired {
		if err := s.tasks.ExpireSleep(id); err == nil {
			tcb, lookupErr := s.tasks.Lookup(id)
			prio := uint8(0)
			if lookupErr == nil {
				prio = tcb.Priority
			}
			st := s.mu.Lock()
			s.enqueueLocked(id, prio)
			s.mu.Unlock(st)
		}
	}
}

// HandlePostIRQ is called at the tail of every IRQ dispatch (the irqtab
// PostIRQHook). If preemption is enabled and the tick flag is set, it
// schedules (§4.E "Post-IRQ hook").
func (s *Scheduler) HandlePostIRQ() {
	st := s.mu.Lock()
	fire := s.preemptionEnabled && s.tickFlag
	s.tickFlag = false
	s.mu.Unlock(st)
	if fire {
		s.Schedule()
	}
}

// RegisterOutcomeHook installs the callback invoked whenever
// roulette_result applies a win/loss outcome (§4.F "notifies any
// registered outcome hook"), reporting the resulting ledger balance
// alongside the outcome. Single-slot: a later registration replaces an
// earlier one, matching the single-CPU, non-reentrant concurrency model
// of §5.
func (s *Scheduler) RegisterOutcomeHook(hook func(taskID uint64, isWin bool, balance int64)) {
	st := s.mu.Lock()
	defer s.mu.Unlock(st)
	s.outcomeHook = hook
}

// ApplyOutcome awards the ledger and fires the registered outcome hook,
// if any.
func (s *Scheduler) ApplyOutcome(taskID uint64, isWin bool) {
	if isWin {
		s.ledger.AwardWin()
	} else {
		s.ledger.AwardLoss()
	}
	balance := s.ledger.Balance()
	st := s.mu.Lock()
	hook := s.outcomeHook
	s.mu.Unlock(st)
	if hook != nil {
		hook(taskID, isWin, balance)
	}
}

// Stats is a snapshot of the scheduler's counters, for sys_info (a
// supplemented feature, SPEC_FULL.md §3).
type Stats struct {
	ContextSwitches uint64
	Yields          uint64
	ScheduleCalls   uint64
	ReadySize       int
	TickCount       uint64
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	st := s.mu.Lock()
	defer s.mu.Unlock(st)
	return Stats{
		ContextSwitches: s.contextSwitches,
		Yields:          s.yields,
		ScheduleCalls:   s.scheduleCalls,
		ReadySize:       len(s.ready),
		TickCount:       s.tickCount,
	}
}

// String renders the ledger for panic/log messages.
func (l *Ledger) String() string {
	return fmt.Sprintf("ledger{balance=%d}", l.Balance())
}
