package itests

import (
	"fmt"

	"slopos/internal/syscall"
	"slopos/internal/trapframe"
)

// SuiteNames is the stable order itests=all (and RunAll) iterates the
// registered suites in, matching spec.md §6's "itests=all|basic|memory|
// control|off" enumeration.
var SuiteNames = []string{"basic", "memory", "control"}

// Suites is the built-in scenario registry, keyed by the same names the
// itests= command-line key accepts. cmd/slopctl itest's manifest can
// restrict a run to a subset of these names; it never invents new ones
// without a matching entry here.
var Suites = map[string][]Scenario{
	"basic":   basicScenarios,
	"memory":  memoryScenarios,
	"control": controlScenarios,
}

var basicScenarios = []Scenario{
	{Name: "boot_brings_up_core_components", Run: func(h *Harness) error {
		if h.Kernel.LAPIC == nil || !h.Kernel.LAPIC.IsEnabled() {
			return fmt.Errorf("local APIC not enabled after boot")
		}
		if h.Kernel.Scheduler == nil || h.Kernel.Tasks == nil || h.Kernel.Fate == nil {
			return fmt.Errorf("core component missing after boot")
		}
		return nil
	}},
	{Name: "yield_returns_ok", Run: func(h *Harness) error {
		rax := h.Syscall(uint64(syscall.SysYield), 0, 0, 0, 0, 0, 0)
		if rax == syscall.ErrorReturn {
			return fmt.Errorf("yield returned error sentinel")
		}
		return nil
	}},
	{Name: "timer_irq_drives_scheduler_tick", Run: func(h *Harness) error {
		before := h.Kernel.Scheduler.Stats().TickCount
		frame := &trapframe.Frame{Vector: uint8(trapframe.IRQBase)}
		h.Kernel.DispatchIRQ(frame)
		after := h.Kernel.Scheduler.Stats().TickCount
		if after != before+1 {
			return fmt.Errorf("tick count = %d, want %d", after, before+1)
		}
		return nil
	}},
	{Name: "unknown_syscall_number_fails", Run: func(h *Harness) error {
		rax := h.Syscall(uint64(syscall.NumSyscalls), 0, 0, 0, 0, 0, 0)
		if rax != syscall.ErrorReturn {
			return fmt.Errorf("out-of-range syscall number did not fail")
		}
		return nil
	}},
}

var memoryScenarios = []Scenario{
	{Name: "fs_write_read_round_trip", Run: func(h *Harness) error {
		um := h.Kernel.Syscalls.UserMem.(*syscall.SimUserMemory)
		const pathAddr, dataAddr, readAddr = 0x1000, 0x2000, 0x3000
		path := append([]byte("/greeting"), 0)
		um.Poke(pathAddr, path)

		fd := h.Syscall(uint64(syscall.SysFSOpen), pathAddr, 0, 0, 0, 0, 0)
		if fd == syscall.ErrorReturn {
			return fmt.Errorf("fs_open failed")
		}

		payload := []byte("hello from itests")
		um.Poke(dataAddr, payload)
		written := h.Syscall(uint64(syscall.SysFSWrite), fd, dataAddr, uint64(len(payload)), 0, 0, 0)
		if written != uint64(len(payload)) {
			return fmt.Errorf("fs_write wrote %d bytes, want %d", written, len(payload))
		}

		n := h.Syscall(uint64(syscall.SysFSRead), fd, readAddr, uint64(len(payload)), 0, 0, 0)
		if n != uint64(len(payload)) {
			return fmt.Errorf("fs_read returned %d bytes, want %d", n, len(payload))
		}
		got := um.Peek(readAddr, int(n))
		if string(got) != string(payload) {
			return fmt.Errorf("fs_read round trip mismatch: got %q, want %q", got, payload)
		}

		if rax := h.Syscall(uint64(syscall.SysFSClose), fd, 0, 0, 0, 0, 0); rax == syscall.ErrorReturn {
			return fmt.Errorf("fs_close failed")
		}
		return nil
	}},
	{Name: "write_rejects_null_user_pointer", Run: func(h *Harness) error {
		rax := h.Syscall(uint64(syscall.SysWrite), 0, 16, 0, 0, 0, 0)
		if rax != syscall.ErrorReturn {
			return fmt.Errorf("write(nil, ...) did not fail")
		}
		return nil
	}},
	{Name: "copy_rejects_address_outside_accessible_window", Run: func(h *Harness) error {
		um := h.Kernel.Syscalls.UserMem.(*syscall.SimUserMemory)
		um.RestrictAccessible(0, 4096)
		defer um.RestrictAccessible(0, 65536)
		rax := h.Syscall(uint64(syscall.SysWrite), 1<<20, 16, 0, 0, 0, 0)
		if rax != syscall.ErrorReturn {
			return fmt.Errorf("write outside accessible window did not fail")
		}
		return nil
	}},
	{Name: "sys_info_reports_syscall_counters", Run: func(h *Harness) error {
		um := h.Kernel.Syscalls.UserMem.(*syscall.SimUserMemory)
		const outAddr = 0x4000
		h.Syscall(uint64(syscall.SysYield), 0, 0, 0, 0, 0, 0)
		rax := h.Syscall(uint64(syscall.SysSysInfo), outAddr, 0, 0, 0, 0, 0)
		if rax == syscall.ErrorReturn {
			return fmt.Errorf("sys_info failed")
		}
		out := um.Peek(outAddr, 8)
		ok := uint64(0)
		for i := 0; i < 8; i++ {
			ok |= uint64(out[i]) << (8 * i)
		}
		if ok == 0 {
			return fmt.Errorf("sys_info reported zero successful syscalls after a yield")
		}
		return nil
	}},
}

var controlScenarios = []Scenario{
	{Name: "roulette_spin_then_result_moves_ledger", Run: func(h *Harness) error {
		before := h.Kernel.Ledger.Balance()
		packed := h.Syscall(uint64(syscall.SysRouletteSpin), 0, 0, 0, 0, 0, 0)
		if packed == syscall.ErrorReturn {
			return fmt.Errorf("roulette_spin failed")
		}
		rax := h.Syscall(uint64(syscall.SysRouletteResult), packed, 0, 0, 0, 0, 0)
		if rax == syscall.ErrorReturn {
			return fmt.Errorf("roulette_result rejected its own spin's token")
		}
		after := h.Kernel.Ledger.Balance()
		if after == before {
			return fmt.Errorf("ledger balance unchanged by roulette_result")
		}
		return nil
	}},
	{Name: "roulette_result_without_spin_fails", Run: func(h *Harness) error {
		rax := h.Syscall(uint64(syscall.SysRouletteResult), 0, 0, 0, 0, 0, 0)
		if rax != syscall.ErrorReturn {
			return fmt.Errorf("roulette_result with no pending spin did not fail")
		}
		return nil
	}},
	{Name: "insolvent_ledger_halts_next_schedule", Run: func(h *Harness) (err error) {
		h.Kernel.Scheduler.ApplyOutcome(h.TaskID, false)
		defer func() {
			if r := recover(); r == nil {
				err = fmt.Errorf("Schedule did not panic on an insolvent ledger")
			}
		}()
		h.Kernel.Scheduler.Schedule()
		return nil
	}},
	{Name: "outcome_hook_observes_balance", Run: func(h *Harness) error {
		var gotBalance int64 = -1
		h.Kernel.Scheduler.RegisterOutcomeHook(func(taskID uint64, win bool, balance int64) {
			gotBalance = balance
		})
		h.Kernel.Scheduler.ApplyOutcome(h.TaskID, true)
		if gotBalance != h.Kernel.Ledger.Balance() {
			return fmt.Errorf("outcome hook saw balance %d, ledger reports %d", gotBalance, h.Kernel.Ledger.Balance())
		}
		return nil
	}},
}
