// Package itests implements the integration-test suites named by the
// kernel command line's itests= key (spec.md §6, §8): "basic", "memory",
// "control". Each scenario boots a fresh Kernel against a simulated
// backend and exercises one contract end to end. cmd/slopctl's itest
// subcommand runs these through Run/RunSuite against the suite list a
// manifest names, instead of a hardcoded switch.
//
// Grounded on container/container_test.go (teacher) for the
// build-a-fresh-fixture-per-test shape, generalized from "fresh
// container per test" to "fresh Kernel per scenario."
package itests

import (
	"fmt"

	"slopos/bootcfg"
	"slopos/internal/bootinfo"
	"slopos/internal/cpu"
	"slopos/internal/kernel"
	"slopos/internal/syscall"
	"slopos/internal/task"
	"slopos/internal/trapframe"
)

// Scenario is one named, self-contained check.
type Scenario struct {
	Name string
	Run  func(h *Harness) error
}

// Result is one scenario's outcome, reported by cmd/slopctl itest.
type Result struct {
	Suite    string
	Scenario string
	Err      error
}

// Passed reports whether the scenario completed without error.
func (r Result) Passed() bool { return r.Err == nil }

// Harness bundles a freshly booted Kernel and one Ready->Running user
// task, the fixture every scenario starts from.
type Harness struct {
	Kernel *kernel.Kernel
	TaskID uint64
}

const rsdpAddr = 0x1000
const rsdtAddr = 0x1800
const madtAddr = 0x2000

// NewHarness boots a Kernel against a fresh SimBackend with ACPI tables
// staged, creates one running task, and wires a SimUserMemory window
// large enough for every syscall's user-copy arguments.
func NewHarness(cmdline string) (*Harness, error) {
	backend := cpu.NewSimBackend()
	stageACPI(backend)
	boot := bootinfo.Info{HHDMOffset: 0, RSDPAddress: rsdpAddr, CommandLine: cmdline}
	cfg, err := bootcfg.Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("parse command line: %w", err)
	}
	k := kernel.New(backend, boot, cfg, nil)
	if err := k.Init(); err != nil {
		return nil, fmt.Errorf("kernel init: %w", err)
	}
	k.Syscalls.UserMem = syscall.NewSimUserMemory(65536)

	id := k.Tasks.Create("itest", nil, 0, 10, 0, task.StackRegion{Base: 0x10000, Size: 0x1000}, nil, 0)
	tcb, err := k.Tasks.Lookup(id)
	if err != nil {
		return nil, err
	}
	tcb.MarkRunning()
	return &Harness{Kernel: k, TaskID: id}, nil
}

// Syscall drives one syscall through the gateway on behalf of the
// harness's task, returning rax.
func (h *Harness) Syscall(num uint64, a0, a1, a2, a3, a4, a5 uint64) uint64 {
	frame := &trapframe.Frame{}
	frame.Regs.RAX = num
	frame.Regs.RDI, frame.Regs.RSI, frame.Regs.RDX = a0, a1, a2
	frame.Regs.R10, frame.Regs.R8, frame.Regs.R9 = a3, a4, a5
	h.Kernel.HandleSyscall(h.TaskID, frame)
	return frame.Regs.RAX
}

// Run builds a fresh Harness and executes one scenario, converting a
// panic (the scheduler's solvency check, §4.E) into a failing Result
// rather than crashing the whole suite run.
func Run(suite string, sc Scenario) (res Result) {
	res = Result{Suite: suite, Scenario: sc.Name}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	h, err := NewHarness("")
	if err != nil {
		res.Err = err
		return res
	}
	res.Err = sc.Run(h)
	return res
}

// RunSuite runs every scenario in a named suite, in order, stopping for
// nothing — a failing scenario does not skip the rest.
func RunSuite(suite string) ([]Result, error) {
	scenarios, ok := Suites[suite]
	if !ok {
		return nil, fmt.Errorf("unknown suite %q", suite)
	}
	out := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, Run(suite, sc))
	}
	return out, nil
}

// RunAll runs every registered suite, in the stable order given by
// SuiteNames.
func RunAll() []Result {
	var out []Result
	for _, name := range SuiteNames {
		results, err := RunSuite(name)
		if err != nil {
			continue
		}
		out = append(out, results...)
	}
	return out
}
