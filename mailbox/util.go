package mailbox

import "sync/atomic"

// boolFlag is a tiny idempotent-transition flag used by Output/Input to
// guard Close against being applied twice.
type boolFlag struct {
	v atomic.Bool
}

// get reports the flag's current value.
func (f *boolFlag) get() bool {
	return f.v.Load()
}

// setOnce transitions the flag from false to true and reports whether this
// call performed that transition (i.e. it is the first caller to win).
func (f *boolFlag) setOnce() bool {
	return f.v.CompareAndSwap(false, true)
}
