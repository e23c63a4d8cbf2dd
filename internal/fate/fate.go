// Package fate implements the fate/roulette token handshake: an LFSR
// spin, a task-keyed single pending slot, and the token-matching
// discipline that makes roulette_result safe against double-apply and
// cross-task forgery (§3 "Fate result record", §4.F "Fate token
// handshake").
//
// Grounded on hooks/hooks.go (teacher)'s single-shot callback-with-
// context pattern for the pending-record-consumed-once shape; the LFSR
// itself is arithmetic with no corpus library applicable to it.
package fate

import (
	kerrors "slopos/errors"
	"slopos/utils"
)

// FallbackSeed is used if the TSC reads zero at first use (§4.F cites
// "seeded from the low 32 bits of TSC" with this fallback for the
// degenerate all-zero reading).
const FallbackSeed uint32 = 0xDEADBEEF

// lfsrPolynomial is the Galois LFSR tap mask for x^32+x^7+x^5+x^3+x^2+x+1.
const lfsrPolynomial uint32 = 0b10000000_00000000_00000000_10101111

// LFSR is a 32-bit Galois linear-feedback shift register.
type LFSR struct {
	mu    *utils.SpinLock
	state uint32
}

// NewLFSR seeds the register from seed, substituting FallbackSeed if
// seed is zero (an all-zero LFSR never produces anything but zero). ic
// is the interrupt controller its SpinLock disables against (§5
// "Shared-resource policy").
func NewLFSR(seed uint32, ic utils.InterruptController) *LFSR {
	if seed == 0 {
		seed = FallbackSeed
	}
	return &LFSR{state: seed, mu: utils.NewSpinLock(ic)}
}

// Next advances the register one step and returns the new state.
func (l *LFSR) Next() uint32 {
	st := l.mu.Lock()
	defer l.mu.Unlock(st)
	lsb := l.state & 1
	l.state >>= 1
	if lsb == 1 {
		l.state ^= lfsrPolynomial
	}
	return l.state
}

// Result is the fate result record (§3): a spun value, a non-zero
// token proving which spin it came from, and the derived win/loss flag.
type Result struct {
	Value uint32
	Token uint32
	IsWin bool
}

// Packed returns the wire representation roulette_spin returns to user
// space: (token<<32)|value (§4.F).
func (r Result) Packed() uint64 {
	return uint64(r.Token)<<32 | uint64(r.Value)
}

// Table is the task-keyed single-pending-slot store (§3: "at most one
// outstanding spin per task").
type Table struct {
	mu      *utils.SpinLock
	lfsr    *LFSR
	nextTok uint32
	pending map[uint64]Result
}

// NewTable returns an empty pending-slot table driven by lfsr, guarded
// by a SpinLock over ic (§5 "Shared-resource policy").
func NewTable(lfsr *LFSR, ic utils.InterruptController) *Table {
	return &Table{lfsr: lfsr, nextTok: 1, pending: map[uint64]Result{}, mu: utils.NewSpinLock(ic)}
}

// Spin implements roulette_spin: spins the LFSR once, stores the result
// under taskID's slot, and returns it. Rejects a second spin before the
// first is consumed (§4.F).
func (t *Table) Spin(taskID uint64) (Result, error) {
	st := t.mu.Lock()
	defer t.mu.Unlock(st)

	if _, exists := t.pending[taskID]; exists {
		return Result{}, kerrors.ErrSpinAlreadyPending
	}

	value := t.lfsr.Next()
	token := t.nextTok
	t.nextTok++
	if t.nextTok == 0 { // never let the token wrap to zero (§3: "never zero")
		t.nextTok = 1
	}

	result := Result{Value: value, Token: token, IsWin: value&1 != 0}
	t.pending[taskID] = result
	return result, nil
}

// Consume implements roulette_result: takes taskID's pending record,
// validating that packed's high 32 bits match the stored token. Returns
// ErrNoSpinPending if no spin is outstanding, ErrTokenMismatch if the
// token doesn't match (the record is left in place on mismatch, so a
// retry with the correct token still works).
func (t *Table) Consume(taskID uint64, packed uint64) (Result, error) {
	st := t.mu.Lock()
	defer t.mu.Unlock(st)

	result, exists := t.pending[taskID]
	if !exists {
		return Result{}, kerrors.ErrNoSpinPending
	}
	suppliedToken := uint32(packed >> 32)
	if suppliedToken != result.Token {
		return Result{}, kerrors.ErrTokenMismatch
	}

	delete(t.pending, taskID)
	return result, nil
}

// Clear drops taskID's pending spin unconditionally, used by
// task_terminate (§4.D: "drops any pending fate record keyed by this
// task").
func (t *Table) Clear(taskID uint64) {
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	delete(t.pending, taskID)
}

// HasPending reports whether taskID currently has an outstanding spin.
func (t *Table) HasPending(taskID uint64) bool {
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	_, exists := t.pending[taskID]
	return exists
}
