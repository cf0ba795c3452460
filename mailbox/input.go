package mailbox

import (
	"context"
	"math/rand/v2"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Input is a receive handle. It implements the Alternative described in
// spec.md §4.4: EmptyInput always yields None, and Or atomically races two
// Inputs, committing to whichever produces a value first.
//
// Leaf Inputs (from Spawn/Clone) and Inputs formed by Or-ing leaf/composite
// Inputs together share a fast path: their underlying mailboxes are locked
// in one composite transaction, exactly like Output.Send. MapInput and
// BindInput change the carried type, so their results fall back to a
// goroutine-race implementation when further composed with Or - see the
// doc comment on Or for the resulting trade-off.
type Input[A any] struct {
	// sources lists the mailboxes this Input reads from directly. Nil
	// for Inputs derived through MapInput/BindInput, whose Recv is
	// instead driven by recvRaw alone.
	sources []*Mailbox[A]

	// recvRaw performs one receive transaction and returns the raw
	// (value, ok) pair; Recv wraps it into an fn.Option.
	recvRaw func(ctx context.Context) (A, bool)

	// children holds the constituent Inputs when this value was formed
	// by Or, so Close can cascade. Nil for leaves, MapInput and
	// BindInput results (those don't own any refcount of their own; the
	// original Input(s) they were derived from remain the caller's
	// responsibility to Close).
	children []*Input[A]

	closed boolFlag
}

// newLeafInput wraps a single, already-refcounted mailbox.
func newLeafInput[A any](mb *Mailbox[A]) *Input[A] {
	return &Input[A]{
		sources: []*Mailbox[A]{mb},
		recvRaw: mb.tryRecv,
	}
}

// EmptyInput returns the Alternative identity: an Input whose Recv always
// returns None.
func EmptyInput[A any]() *Input[A] {
	return &Input[A]{
		recvRaw: func(context.Context) (A, bool) {
			var zero A
			return zero, false
		},
	}
}

// Recv attempts one receive transaction, returning Some(a) if a value was
// available and None if every source is sealed and drained. It blocks while
// every source is live but empty.
func (i *Input[A]) Recv(ctx context.Context) fn.Option[A] {
	if i.closed.get() {
		return fn.None[A]()
	}

	v, ok := i.recvRaw(ctx)
	if !ok {
		return fn.None[A]()
	}
	return fn.Some(v)
}

// Or returns an Input that atomically attempts both i and other, committing
// to whichever produces a value first; if both are exhausted it returns
// None (spec.md §4.4's Alternative <|>). When both operands are
// mailbox-backed (leaves or prior Or results), the race is resolved inside
// one composite lock/retry transaction exactly like Output.Combine. When
// either operand is opaque (derived via MapInput/BindInput), Or falls back
// to racing two goroutines with a shared cancellation, which still
// satisfies the "whichever succeeds first, None only if both are
// exhausted" contract without requiring Go to provide generalized STM.
func (i *Input[A]) Or(other *Input[A]) *Input[A] {
	if i.sources != nil && other.sources != nil {
		merged := make([]*Mailbox[A], 0, len(i.sources)+len(other.sources))
		merged = append(merged, i.sources...)
		merged = append(merged, other.sources...)

		return &Input[A]{
			sources:  merged,
			recvRaw:  compositeRecv(merged),
			children: []*Input[A]{i, other},
		}
	}

	return &Input[A]{
		recvRaw:  raceRecv(i, other),
		children: []*Input[A]{i, other},
	}
}

// compositeRecv builds the fast-path transaction for a flattened set of
// source mailboxes: lock all of them (in a globally consistent order), try
// each in a randomized rotation so no single source is favored under
// contention, and otherwise wait on whichever live source changes next.
func compositeRecv[A any](sources []*Mailbox[A]) func(context.Context) (A, bool) {
	return func(ctx context.Context) (A, bool) {
		for {
			locked := lockMailboxesSorted(sources)

			start := 0
			if len(locked) > 1 {
				start = rand.IntN(len(locked))
			}

			for k := 0; k < len(locked); k++ {
				m := locked[(start+k)%len(locked)]
				if v, ok := m.buf.read(); ok {
					m.signalLocked()
					unlockMailboxes(locked)
					return v, true
				}
			}

			allExhausted := true
			var blocked []chan struct{}
			for _, m := range locked {
				if !m.sealed {
					allExhausted = false
					blocked = append(blocked, m.changed)
				}
			}

			unlockMailboxes(locked)

			if allExhausted {
				var zero A
				return zero, false
			}

			waitAnyClosed(ctx, blocked)
			if ctx.Err() != nil {
				var zero A
				return zero, false
			}
		}
	}
}

// raceRecv is the opaque-Input fallback described on Or: it drives both
// candidate receives concurrently and commits to the first one that
// produces a value, cancelling the loser. If the first to finish is empty,
// it waits for the second before concluding both are exhausted.
func raceRecv[A any](i, other *Input[A]) func(context.Context) (A, bool) {
	return func(ctx context.Context) (A, bool) {
		raceCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		type outcome struct {
			v  A
			ok bool
		}
		results := make(chan outcome, 2)

		go func() {
			v, ok := i.recvRaw(raceCtx)
			results <- outcome{v, ok}
		}()
		go func() {
			v, ok := other.recvRaw(raceCtx)
			results <- outcome{v, ok}
		}()

		first := <-results
		if first.ok {
			cancel()
			return first.v, true
		}

		second := <-results
		cancel()

		if second.ok {
			return second.v, true
		}

		var zero A
		return zero, false
	}
}

// Clone returns a new handle onto the same source(s), incrementing the
// relevant consumer liveness counters. For a leaf Input this bumps the
// single source mailbox's consumer refcount; for an Or-derived Input it
// clones (and recombines) every constituent. MapInput/BindInput results
// have no constituents of their own to clone; Clone on one simply returns
// an equivalent handle sharing the same underlying receive function, since
// those derived Inputs never owned a refcount to begin with.
func (i *Input[A]) Clone() *Input[A] {
	if len(i.children) > 0 {
		cloned := i.children[0].Clone()
		for _, c := range i.children[1:] {
			cloned = cloned.Or(c.Clone())
		}
		return cloned
	}

	if len(i.sources) == 1 {
		i.sources[0].addConsumerRef()
		return newLeafInput(i.sources[0])
	}

	return &Input[A]{recvRaw: i.recvRaw}
}

// Close releases this handle. For a leaf Input, this drops the consumer
// refcount on its source mailbox, sealing it if no consumer handle
// remains. For an Or-derived Input, Close cascades to every constituent.
// For a MapInput/BindInput result, Close is a no-op: the original Input(s)
// it reads through remain the caller's responsibility. Idempotent.
func (i *Input[A]) Close() {
	if !i.closed.setOnce() {
		return
	}

	if len(i.children) > 0 {
		for _, c := range i.children {
			c.Close()
		}
		return
	}

	if len(i.sources) == 1 {
		i.sources[0].releaseConsumerRef()
	}
}

// MapInput returns an Input that post-processes every value i produces with
// f, purely inside the receive transaction (spec.md §4.4's Functor fmap).
// The result shares no refcount of its own; i remains the handle the caller
// must eventually Close.
func MapInput[A, B any](i *Input[A], f func(A) B) *Input[B] {
	return &Input[B]{
		recvRaw: func(ctx context.Context) (B, bool) {
			v, ok := i.recvRaw(ctx)
			if !ok {
				var zero B
				return zero, false
			}
			return f(v), true
		},
	}
}

// BindInput sequences a second receive keyed on the first result: once i
// produces a value, f is applied to choose the next Input to receive from.
// A None at any step short-circuits the whole chain to None (spec.md
// §4.4's monadic sequencing). Like MapInput, the result owns no refcount of
// its own.
func BindInput[A, B any](i *Input[A], f func(A) *Input[B]) *Input[B] {
	return &Input[B]{
		recvRaw: func(ctx context.Context) (B, bool) {
			v, ok := i.recvRaw(ctx)
			if !ok {
				var zero B
				return zero, false
			}
			return f(v).recvRaw(ctx)
		},
	}
}
