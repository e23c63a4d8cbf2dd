package task

import (
	kerrors "slopos/errors"
	"slopos/utils"
)

// MaxHandles bounds a single process's open-handle table (§4.F's
// "handle table full" error implies a fixed capacity).
const MaxHandles = 32

// Closer is anything a handle table entry can own and must release on
// close (a file, a framebuffer lease, etc).
type Closer interface {
	Close() error
}

// HandleTable is the per-process table task_terminate drains (§4.D:
// "closes all file handles owned by the process"). Grounded on
// container/syscalls.go (teacher)'s thin per-resource wrapper style,
// generalized from raw syscall fd wrapping to an owned-resource table.
type HandleTable struct {
	mu      *utils.SpinLock
	entries [MaxHandles]Closer
}

// NewHandleTable returns an empty handle table guarded by a SpinLock
// over ic (§5 "Shared-resource policy").
func NewHandleTable(ic utils.InterruptController) *HandleTable {
	return &HandleTable{mu: utils.NewSpinLock(ic)}
}

// Open installs c in the first free slot and returns its handle number,
// or ErrHandlesExhausted if the table is full.
func (h *HandleTable) Open(c Closer) (int, error) {
	st := h.mu.Lock()
	defer h.mu.Unlock(st)
	for i, e := range h.entries {
		if e == nil {
			h.entries[i] = c
			return i, nil
		}
	}
	return -1, kerrors.ErrHandlesExhausted
}

// Get returns the Closer at handle, or ErrNotOwnedHandle if the slot is
// empty or handle is out of range (an absent handle is, from the
// caller's perspective, indistinguishable from one it never owned).
func (h *HandleTable) Get(handle int) (Closer, error) {
	st := h.mu.Lock()
	defer h.mu.Unlock(st)
	if handle < 0 || handle >= MaxHandles || h.entries[handle] == nil {
		return nil, kerrors.ErrNotOwnedHandle
	}
	return h.entries[handle], nil
}

// Close closes and clears the entry at handle.
func (h *HandleTable) Close(handle int) error {
	st := h.mu.Lock()
	if handle < 0 || handle >= MaxHandles || h.entries[handle] == nil {
		h.mu.Unlock(st)
		return kerrors.ErrNotOwnedHandle
	}
	c := h.entries[handle]
	h.entries[handle] = nil
	h.mu.Unlock(st)

	return c.Close()
}

// CloseAll closes every open handle, the action task_terminate takes
// before a TCB is eligible for reaping.
func (h *HandleTable) CloseAll() {
	st := h.mu.Lock()
	open := make([]Closer, 0, MaxHandles)
	for i, e := range h.entries {
		if e != nil {
			open = append(open, e)
			h.entries[i] = nil
		}
	}
	h.mu.Unlock(st)
	for _, c := range open {
		_ = c.Close()
	}
}
