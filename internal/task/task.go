// Package task implements component D: the task control block, its
// state machine, and the per-process handle table (§3 "Task control
// block", §4.D).
//
// Grounded on container/container.go + container/state.go +
// spec/state.go (teacher): the Container/ContainerState/ContainerStatus
// shape is retargeted field-for-field to TCB/State, and
// linux/namespace.go's per-container address-space isolation grounds the
// page-directory-reference field, generalized from namespace handles to
// page-directory handles.
package task

import (
	kerrors "slopos/errors"
	"slopos/utils"
)

// InvalidTaskID is the reserved zero value naming no task (§4.D).
const InvalidTaskID uint64 = 0

// State is a TCB's position in the lifecycle state machine (§4.D).
type State int

const (
	Unused State = iota
	Ready
	Running
	Blocked
	Sleeping
	Terminated
)

func (s State) String() string {
	switch s {
	case Unused:
		return "Unused"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Sleeping:
		return "Sleeping"
	case Terminated:
		return "Terminated"
	default:
		return "Invalid"
	}
}

// Flags carries per-task mode bits.
type Flags uint32

const (
	FlagUserMode Flags = 1 << 0
)

// StackRegion is an owned span of stack memory; the page allocator that
// backs it is out of scope (§1), so this is a plain descriptor.
type StackRegion struct {
	Base uint64
	Size uint64
}

// ContextSaveArea holds the callee-saved registers, stack/base pointers,
// flags, and the page-directory handle to install on resume (§4.D).
type ContextSaveArea struct {
	RSP, RBP uint64
	RBX      uint64
	R12, R13, R14, R15 uint64
	RFlags   uint64
	PageDir  uint64
}

// Entry is the function signature a task's entry point takes: the
// argument passed to task_create, landed in the first argument register
// on first schedule.
type Entry func(arg uint64)

// TCB is the task control block (§3).
type TCB struct {
	mu *utils.SpinLock

	TaskID    uint64
	ProcessID uint64
	Name      string
	Priority  uint8
	Flags     Flags
	State     State

	EntryPoint Entry
	Argument   uint64

	KernelStack StackRegion
	UserStack   *StackRegion // nil for kernel-only tasks
	PageDir     uint64

	Context ContextSaveArea

	ExitReason string
	FaultReason string
	ExitCode   int64

	ContextSwitches   uint64
	LastScheduledTick uint64

	handles *HandleTable

	waitQueue *WaitQueue // non-nil iff State == Blocked
}

// MarkRunning sets State to Running directly, used by the scheduler when
// installing the newly chosen task (the legality check already happened
// when the task was picked off the ready queue).
func (t *TCB) MarkRunning() {
	st := t.mu.Lock()
	t.State = Running
	t.mu.Unlock(st)
}

// MarkReady sets State to Ready directly, used by the scheduler when a
// Running task yields or is preempted back onto the ready queue.
func (t *TCB) MarkReady() {
	st := t.mu.Lock()
	t.State = Ready
	t.mu.Unlock(st)
}

// snapshot returns the State under lock, used by callers that must not
// race with a concurrent transition (single-CPU cooperative core, but
// IRQ context can still race task-context reads of state).
func (t *TCB) snapshot() State {
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	return t.State
}

// Snapshot is snapshot's exported form, for callers outside the package
// (the scheduler) that must not race a concurrent transition.
func (t *TCB) Snapshot() State {
	return t.snapshot()
}

// transition moves the TCB to next if the current state is one of from;
// returns ErrInvalidTaskID's sibling (a plain bool) otherwise, since the
// state machine's legality rules are enforced by Table, not by TCB alone.
func (t *TCB) transition(next State, from ...State) bool {
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	ok := false
	for _, f := range from {
		if t.State == f {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	t.State = next
	return true
}

// Table is the fixed-capacity TCB table a kernel build allocates at
// init, mirroring the teacher's Container registry sizing decision made
// once at construction.
type Table struct {
	mu     *utils.SpinLock
	ic     utils.InterruptController
	tcbs   []*TCB
	nextID uint64
}

// NewTable returns a Table with capacity fixed slots, all Unused. ic is
// the single interrupt controller every SpinLock in the table (and the
// handle tables and wait queues it owns) disables interrupts against
// (§5 "Shared-resource policy"); a real build passes the one backend
// shared kernel-wide.
func NewTable(capacity int, ic utils.InterruptController) *Table {
	tcbs := make([]*TCB, capacity)
	for i := range tcbs {
		tcbs[i] = &TCB{State: Unused, handles: NewHandleTable(ic), mu: utils.NewSpinLock(ic)}
	}
	return &Table{tcbs: tcbs, nextID: 1, mu: utils.NewSpinLock(ic), ic: ic}
}

// Create implements task_create (§4.D): allocates a TCB, assigns a
// monotonic non-zero task_id, and sets up KernelStack/UserStack
// descriptors (the pages themselves come from a caller-supplied
// allocator, kept out of this package per §1's page-allocator scope
// line). Returns InvalidTaskID on exhaustion.
func (tb *Table) Create(name string, entry Entry, arg uint64, priority uint8, flags Flags, kstack StackRegion, ustack *StackRegion, pageDir uint64) uint64 {
	st := tb.mu.Lock()
	defer tb.mu.Unlock(st)

	for _, t := range tb.tcbs {
		if t.snapshot() != Unused {
			continue
		}
		tst := t.mu.Lock()
		t.TaskID = tb.nextID
		tb.nextID++
		t.Name = name
		t.EntryPoint = entry
		t.Argument = arg
		t.Priority = priority
		t.Flags = flags
		t.KernelStack = kstack
		t.UserStack = ustack
		t.PageDir = pageDir
		t.Context = ContextSaveArea{RSP: kstack.Base + kstack.Size, PageDir: pageDir}
		t.ExitReason = ""
		t.FaultReason = ""
		t.ExitCode = 0
		t.ContextSwitches = 0
		t.State = Ready
		t.waitQueue = nil
		t.mu.Unlock(tst)
		return t.TaskID
	}
	return InvalidTaskID
}

// Lookup returns the TCB for id, or ErrTaskNotFound.
func (tb *Table) Lookup(id uint64) (*TCB, error) {
	if id == InvalidTaskID {
		return nil, kerrors.ErrInvalidTaskID
	}
	st := tb.mu.Lock()
	defer tb.mu.Unlock(st)
	for _, t := range tb.tcbs {
		if t.snapshot() == Unused {
			continue
		}
		if t.TaskID == id {
			return t, nil
		}
	}
	return nil, kerrors.ErrTaskNotFound
}

// Terminate implements task_terminate (§4.D): transitions to Terminated
// from any live state, releases the stack descriptors, and returns the
// handle table so the caller (the syscall layer, which owns file
// objects) can close everything the process held open. The fate-slot
// clear and scheduler current-task check are the caller's job (internal/
// fate and internal/sched respectively own that state).
func (tb *Table) Terminate(id uint64, reason string, faultReason string, exitCode int64) (*TCB, error) {
	t, err := tb.Lookup(id)
	if err != nil {
		return nil, err
	}
	st := t.mu.Lock()
	if t.State == Unused || t.State == Terminated {
		t.mu.Unlock(st)
		return nil, kerrors.ErrTaskNotFound
	}
	t.State = Terminated
	t.ExitReason = reason
	t.FaultReason = faultReason
	t.ExitCode = exitCode
	t.KernelStack = StackRegion{}
	t.UserStack = nil
	t.waitQueue = nil
	t.mu.Unlock(st)
	return t, nil
}

// Reap returns a Terminated task to Unused, the final transition in the
// lifecycle diagram; the caller must have already reclaimed any
// resources the invariant in §3 requires be gone by this point.
func (tb *Table) Reap(id uint64) error {
	t, err := tb.Lookup(id)
	if err != nil {
		return err
	}
	if !t.transition(Unused, Terminated) {
		return kerrors.ErrTaskNotFound
	}
	t.handles = NewHandleTable(tb.ic)
	return nil
}

// Block transitions id from Running to Blocked and records q as the
// exclusive wait queue it now sits on (§4.D's "presence on a wait queue
// is exclusive").
func (tb *Table) Block(id uint64, q *WaitQueue) error {
	t, err := tb.Lookup(id)
	if err != nil {
		return err
	}
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	if t.State != Running {
		return kerrors.ErrTaskNotBlocked
	}
	t.State = Blocked
	t.waitQueue = q
	return nil
}

// Wake transitions id from Blocked to Ready and clears its wait-queue
// record, verifying it is still Blocked before changing state; it does
// not check or remove the task's entry in the queue itself (§4.D: "the
// wake path verifies the task is still in Blocked before transitioning").
func (tb *Table) Wake(id uint64) error {
	t, err := tb.Lookup(id)
	if err != nil {
		return err
	}
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	if t.State != Blocked {
		return kerrors.ErrTaskNotBlocked
	}
	t.State = Ready
	t.waitQueue = nil
	return nil
}

// Sleep transitions id from Running to Sleeping.
func (tb *Table) Sleep(id uint64) error {
	t, err := tb.Lookup(id)
	if err != nil {
		return err
	}
	if !t.transition(Sleeping, Running) {
		return kerrors.ErrTaskNotBlocked
	}
	return nil
}

// ExpireSleep transitions id from Sleeping to Ready (the scheduler's
// tick-expire edge).
func (tb *Table) ExpireSleep(id uint64) error {
	t, err := tb.Lookup(id)
	if err != nil {
		return err
	}
	if !t.transition(Ready, Sleeping) {
		return kerrors.ErrTaskNotFound
	}
	return nil
}

// Handles returns id's per-process handle table.
func (tb *Table) Handles(id uint64) (*HandleTable, error) {
	t, err := tb.Lookup(id)
	if err != nil {
		return nil, err
	}
	return t.handles, nil
}

// WaitQueue is a FIFO of blocked task IDs, with the back-reference
// discipline §4.D requires: the queue holds only task IDs, never TCB
// pointers, so a reaped slot can't be dereferenced through a stale
// queue entry.
type WaitQueue struct {
	mu  *utils.SpinLock
	ids []uint64
}

// NewWaitQueue returns an empty FIFO wait queue guarded by a SpinLock
// over ic (§5 "Shared-resource policy").
func NewWaitQueue(ic utils.InterruptController) *WaitQueue {
	return &WaitQueue{mu: utils.NewSpinLock(ic)}
}

// Enqueue appends id to the tail.
func (w *WaitQueue) Enqueue(id uint64) {
	st := w.mu.Lock()
	defer w.mu.Unlock(st)
	w.ids = append(w.ids, id)
}

// Dequeue pops the head, or (0, false) if empty.
func (w *WaitQueue) Dequeue() (uint64, bool) {
	st := w.mu.Lock()
	defer w.mu.Unlock(st)
	if len(w.ids) == 0 {
		return 0, false
	}
	id := w.ids[0]
	w.ids = w.ids[1:]
	return id, true
}

// Len reports the queue's current depth.
func (w *WaitQueue) Len() int {
	st := w.mu.Lock()
	defer w.mu.Unlock(st)
	return len(w.ids)
}
