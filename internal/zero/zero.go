// Package zero provides the scrub-on-release discipline spec.md §5 and §9
// require of every owner of secret bytes (session keys, private exponents,
// passphrases, decrypted challenge responses).
package zero

// Bytes overwrites b with zeros in place. Safe to call on a nil or empty
// slice.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// String replaces *s with the empty string. Go strings are immutable, so
// the old backing bytes are not overwritten; this only drops the
// reference. Prefer Guard for anything that must be provably scrubbed.
func String(s *string) {
	*s = ""
}

// Guard owns a secret byte buffer and zeros it exactly once, either on an
// explicit Release or via a deferred call at the end of the owning
// routine's scope — matching the "owner of secret bytes... must scrub on
// drop" design note.
type Guard struct {
	buf      []byte
	released bool
}

// NewGuard wraps buf for guaranteed zeroing. The caller must not retain
// other references to buf once ownership is handed to the guard.
func NewGuard(buf []byte) *Guard {
	return &Guard{buf: buf}
}

// Bytes returns the live buffer. After Release it keeps its length but
// holds only zeros.
func (g *Guard) Bytes() []byte {
	if g == nil {
		return nil
	}
	return g.buf
}

// Release zeros the buffer. Idempotent.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	Bytes(g.buf)
	g.released = true
}
