package mailbox

import "context"

// Seal is an idempotent thunk that transitions a mailbox to sealed. Calling
// it more than once has no additional effect.
type Seal func()

// Spawn allocates a mailbox around the given buffering discipline and
// returns a connected Output/Input pair plus the Seal thunk, per spec.md
// §4.5. Both liveness counters start at 1, matching a single producer and a
// single consumer handle; Clone the returned Output/Input to add more
// handles on either side.
func Spawn[A any](b Buffer[A]) (*Output[A], *Input[A], Seal) {
	mb := newMailbox(b)

	log.DebugS(context.Background(), "Spawned mailbox", "mailbox_id", mb.diagID)

	out := newLeafOutput(mb)
	in := newLeafInput(mb)

	return out, in, mb.seal
}

// WithSpawn scopes a freshly spawned Output/Input pair to body, guaranteeing
// Seal runs on every exit path - normal return or panic - exactly like a
// scoped resource acquisition. This is the recommended way to use a mailbox
// whose lifetime is naturally bound to a single call stack.
func WithSpawn[A, R any](
	b Buffer[A], body func(out *Output[A], in *Input[A]) R,
) R {
	out, in, seal := Spawn(b)
	defer seal()

	return body(out, in)
}
