package syscall

import kerrors "slopos/errors"

// SimUserMemory is a flat-array stand-in for the real page-table-backed
// user-copy surface: a byte slice addressed directly by the "user
// pointer" values tests pass, with an accessible range a test can shrink
// to exercise the bad-pointer paths. A real build validates against the
// active page directory instead of a fixed range (§4.F).
type SimUserMemory struct {
	mem            []byte
	accessibleFrom uint64
	accessibleTo   uint64 // exclusive
}

// NewSimUserMemory returns a SimUserMemory of size bytes, fully
// accessible from address 0.
func NewSimUserMemory(size int) *SimUserMemory {
	return &SimUserMemory{mem: make([]byte, size), accessibleFrom: 0, accessibleTo: uint64(size)}
}

// RestrictAccessible narrows the user-accessible window, for tests
// exercising ErrBadUserPointer.
func (m *SimUserMemory) RestrictAccessible(from, to uint64) {
	m.accessibleFrom = from
	m.accessibleTo = to
}

func (m *SimUserMemory) rangeOK(addr uint64, n int) bool {
	if n < 0 {
		return false
	}
	end := addr + uint64(n)
	if end < addr { // overflow
		return false
	}
	return addr >= m.accessibleFrom && end <= m.accessibleTo && end <= uint64(len(m.mem))
}

// CopyFromUser implements the copy_from_user primitive (§4.F).
func (m *SimUserMemory) CopyFromUser(dst []byte, userSrc uint64, n int) error {
	if !m.rangeOK(userSrc, n) {
		return kerrors.ErrBadUserPointer
	}
	copy(dst, m.mem[userSrc:userSrc+uint64(n)])
	return nil
}

// CopyToUser implements the copy_to_user primitive (§4.F).
func (m *SimUserMemory) CopyToUser(userDst uint64, src []byte) error {
	if !m.rangeOK(userDst, len(src)) {
		return kerrors.ErrBadUserPointer
	}
	copy(m.mem[userDst:userDst+uint64(len(src))], src)
	return nil
}

// CopyUserStr implements copy_user_str: a bounded copy requiring a NUL
// terminator within cap(dst) (§4.F).
func (m *SimUserMemory) CopyUserStr(dst []byte, userSrc uint64) (int, error) {
	cap := len(dst)
	for i := 0; i < cap; i++ {
		addr := userSrc + uint64(i)
		if addr >= uint64(len(m.mem)) || addr < m.accessibleFrom || addr >= m.accessibleTo {
			return 0, kerrors.ErrBadUserPointer
		}
		b := m.mem[addr]
		if b == 0 {
			return i, nil
		}
		dst[i] = b
	}
	return 0, kerrors.ErrStringNotTerminated
}

// Poke writes data at addr directly, a test helper for staging "user"
// input before a syscall call.
func (m *SimUserMemory) Poke(addr uint64, data []byte) {
	copy(m.mem[addr:], data)
}

// Peek reads n bytes at addr directly, a test helper for observing
// "user" output after a syscall call.
func (m *SimUserMemory) Peek(addr uint64, n int) []byte {
	out := make([]byte, n)
	copy(out, m.mem[addr:addr+uint64(n)])
	return out
}
