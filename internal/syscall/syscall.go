// Package syscall implements component F: the syscall gateway's fixed
// table, dispatch, user-copy validation primitives, and per-syscall W/L
// accounting (§4.F, §6 "Syscall ABI").
//
// Grounded on linux/seccomp.go (teacher) for the "fixed table indexed by
// syscall number, validated before dispatch" shape, and
// container/syscalls.go (teacher) for the one-function-per-primitive
// wrapper style that copy_from_user/copy_to_user/copy_user_str follow.
package syscall

import (
	"slopos/internal/extio"
	"slopos/internal/fate"
	"slopos/internal/sched"
	"slopos/internal/task"
	"slopos/internal/trapframe"
)

// Syscall numbers (§6 ABI table). The table is contractual: never
// renumber an existing entry.
const (
	SysYield         = 0
	SysExit          = 1
	SysWrite         = 2
	SysRead          = 3
	SysRouletteSpin  = 4
	SysSleepMS       = 5
	SysFBInfo        = 6
	SysDrawRect      = 7
	SysDrawCircle    = 8
	SysDrawText      = 9
	SysClear         = 10
	SysPresent       = 11
	SysRandomNext    = 12
	SysRouletteResult = 13
	SysFSOpen        = 14
	SysFSClose       = 15
	SysFSRead        = 16
	SysFSWrite       = 17
	SysFSStat        = 18
	SysFSMkdir       = 19
	SysFSUnlink      = 20
	SysFSList        = 21
	SysSysInfo       = 22
	SysHalt          = 23

	NumSyscalls = 24
)

// ErrorReturn is the value a failing syscall returns in rax, (uint64_t)-1.
const ErrorReturn = ^uint64(0)

// MaxGenericBytes bounds the per-call user byte budget of write, read,
// fs_read and fs_list (§4.F "Bounded I/O"); requests beyond it are
// clipped, not rejected. MaxTextBytes names the 256-byte text budget;
// draw_text does not clip to it: the framebuffer rejects text of 256
// bytes or more with a geometry error.
const (
	MaxGenericBytes = 512
	MaxTextBytes    = 256
)

// Disposition is a handler's return-path contract (§4.F).
type Disposition int

const (
	DispositionOK Disposition = iota
	DispositionNoReturn
	// DispositionBlocked means the caller was moved to Blocked and a
	// reschedule already ran inside the handler (§4.F, §5 suspension
	// points); the trap stub must not resume it to user mode, the same
	// as DispositionNoReturn, until something wakes it.
	DispositionBlocked
)

// UserMemory is the user-copy validation surface (§4.F's three
// primitives). A real build backs this with page-table walks against
// the active page directory; SimUserMemory backs it with a flat byte
// array for tests.
type UserMemory interface {
	CopyFromUser(dst []byte, userSrc uint64, n int) error
	CopyToUser(userDst uint64, src []byte) error
	CopyUserStr(dst []byte, userSrc uint64) (int, error)
}

// Handler is one syscall table entry's implementation. args holds the
// raw rdi, rsi, rdx, ... registers in order.
type Handler func(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (result uint64, disp Disposition, err error)

// entry is one fixed syscall table slot.
type entry struct {
	handler Handler
	name    string
}

var table [NumSyscalls]entry

func register(num int, name string, h Handler) {
	table[num] = entry{handler: h, name: name}
}

func init() {
	register(SysYield, "yield", sysYield)
	register(SysExit, "exit", sysExit)
	register(SysWrite, "write", sysWrite)
	register(SysRead, "read", sysRead)
	register(SysRouletteSpin, "roulette_spin", sysRouletteSpin)
	register(SysSleepMS, "sleep_ms", sysSleepMS)
	register(SysFBInfo, "fb_info", sysFBInfo)
	register(SysDrawRect, "draw_rect", sysDrawRect)
	register(SysDrawCircle, "draw_circle", sysDrawCircle)
	register(SysDrawText, "draw_text", sysDrawText)
	register(SysClear, "clear", sysClear)
	register(SysPresent, "present", sysPresent)
	register(SysRandomNext, "random_next", sysRandomNext)
	register(SysRouletteResult, "roulette_result", sysRouletteResult)
	register(SysFSOpen, "fs_open", sysFSOpen)
	register(SysFSClose, "fs_close", sysFSClose)
	register(SysFSRead, "fs_read", sysFSRead)
	register(SysFSWrite, "fs_write", sysFSWrite)
	register(SysFSStat, "fs_stat", sysFSStat)
	register(SysFSMkdir, "fs_mkdir", sysFSMkdir)
	register(SysFSUnlink, "fs_unlink", sysFSUnlink)
	register(SysFSList, "fs_list", sysFSList)
	register(SysSysInfo, "sys_info", sysSysInfo)
	register(SysHalt, "halt", sysHalt)
}

// Stats is the sys_info aggregate counters record (a supplemented
// feature, SPEC_FULL.md §3).
type Stats struct {
	SyscallsOK     uint64
	SyscallsFailed uint64
	LedgerBalance  int64
}

// Gateway wires the syscall table to the kernel's live subsystems: the
// task table, scheduler, fate table, random-next LFSR, RAMFS, and
// framebuffer. It is the single object dispatch() is a method on.
type Gateway struct {
	Tasks       *task.Table
	Scheduler   *sched.Scheduler
	Ledger      *sched.Ledger
	Fate        *fate.Table
	RandomLFSR  *fate.LFSR
	FS          *extio.RAMFS
	Framebuffer extio.Framebuffer
	Shutdown    extio.Shutdown
	UserMem     UserMemory

	// ConsoleInput and ConsoleWaiters back sys_read's blocking path
	// (§4.F, §5): ConsoleInput is the line queue a driver's
	// notify_input_ready feeds, ConsoleWaiters the FIFO of callers
	// parked with nothing to read yet.
	ConsoleInput   *extio.InputQueue
	ConsoleWaiters *task.WaitQueue

	syscallsOK     uint64
	syscallsFailed uint64
}

// Stats returns the aggregate counters sys_info reports.
func (g *Gateway) Stats() Stats {
	balance := int64(0)
	if g.Ledger != nil {
		balance = g.Ledger.Balance()
	}
	return Stats{
		SyscallsOK:     g.syscallsOK,
		SyscallsFailed: g.syscallsFailed,
		LedgerBalance:  balance,
	}
}

// Dispatch is the syscall stub's single entry point: rax names the
// syscall, frame carries the argument registers, callerID is the
// currently running task. It returns the value to load into rax and the
// disposition the stub must honor.
func (g *Gateway) Dispatch(callerID uint64, frame *trapframe.Frame) (uint64, Disposition) {
	num := frame.Regs.RAX
	if num >= NumSyscalls || table[num].handler == nil {
		g.accountFailure()
		return ErrorReturn, DispositionOK
	}

	args := [6]uint64{frame.Regs.RDI, frame.Regs.RSI, frame.Regs.RDX, frame.Regs.R10, frame.Regs.R8, frame.Regs.R9}
	result, disp, err := table[num].handler(g, callerID, frame, args)
	if err != nil {
		g.accountFailure()
		return ErrorReturn, disp
	}
	g.accountSuccess()
	return result, disp
}

// accountSuccess/accountFailure implement §4.F's per-syscall accounting:
// every successful syscall awards one W, every failing one an L,
// independent of the roulette outcome hooks (those fire only from
// roulette_result).
func (g *Gateway) accountSuccess() {
	g.syscallsOK++
	if g.Ledger != nil {
		g.Ledger.AwardWin()
	}
}

func (g *Gateway) accountFailure() {
	g.syscallsFailed++
	if g.Ledger != nil {
		g.Ledger.AwardLoss()
	}
}

func clampLen(n int, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
