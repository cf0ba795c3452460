package mailbox

import "context"

// Output is a send handle referencing one or more mailboxes. It implements
// the Monoid described in spec.md §4.3: EmptyOutput is the always-false
// identity, and Combine fans a single send out to every target mailbox as
// one atomic transaction.
type Output[A any] struct {
	// targets lists every mailbox a Send writes into. A leaf Output
	// (from Spawn or Clone) has exactly one target; a Combine-derived
	// Output has the union of its operands' targets.
	targets []*Mailbox[A]

	// children holds the constituent Outputs when this value was built
	// by Combine, so Close can cascade to each one. Empty for leaves and
	// for EmptyOutput.
	children []*Output[A]

	closed boolFlag
}

// newLeafOutput wraps a single, already-refcounted mailbox.
func newLeafOutput[A any](mb *Mailbox[A]) *Output[A] {
	return &Output[A]{targets: []*Mailbox[A]{mb}}
}

// EmptyOutput returns the Monoid identity: an Output whose Send always
// returns false and whose Close/Clone are no-ops. Combine(EmptyOutput(), o)
// behaves identically to o.
func EmptyOutput[A any]() *Output[A] {
	return &Output[A]{}
}

// Send attempts to deliver a into every target mailbox as a single
// transaction. It returns false if the mailbox (or every mailbox, for a
// combined Output) is sealed; it blocks while any live target's buffer
// discipline reports Full, and returns true once at least one live target
// has accepted the value.
//
// Per spec.md §4.3, a sealed mailbox with queued values still refuses new
// sends, and a combined Send that finds one side full but not sealed
// retries the whole transaction rather than committing a partial broadcast.
func (o *Output[A]) Send(ctx context.Context, a A) bool {
	if o.closed.get() || len(o.targets) == 0 {
		return false
	}

	// A leaf Output has a single target: the general composite-transaction
	// loop below degenerates to exactly Mailbox.trySend in that case, so
	// delegate instead of keeping two copies of the same lock/retry logic.
	if len(o.targets) == 1 {
		return o.targets[0].trySend(ctx, a)
	}

	for {
		locked := lockMailboxesSorted(o.targets)

		allReady := true
		var blocked []chan struct{}
		for _, m := range locked {
			if m.sealed {
				continue
			}
			if !m.buf.wouldAccept() {
				allReady = false
				blocked = append(blocked, m.changed)
			}
		}

		if !allReady {
			unlockMailboxes(locked)

			waitAnyClosed(ctx, blocked)
			if ctx.Err() != nil {
				return false
			}
			continue
		}

		anyAccepted := false
		for _, m := range locked {
			if m.sealed {
				continue
			}
			if m.buf.write(a) == accepted {
				anyAccepted = true
				m.signalLocked()
			}
		}

		unlockMailboxes(locked)

		log.TraceS(ctx, "Output send completed", "accepted", anyAccepted,
			"target_count", len(locked))

		return anyAccepted
	}
}

// Combine returns an Output whose Send writes into both o's and other's
// targets in a single transaction, returning true if at least one of them
// would have accepted the value (spec.md §4.3's Monoid mappend). Combine is
// associative and EmptyOutput is its identity.
func (o *Output[A]) Combine(other *Output[A]) *Output[A] {
	targets := make([]*Mailbox[A], 0, len(o.targets)+len(other.targets))
	targets = append(targets, o.targets...)
	targets = append(targets, other.targets...)

	return &Output[A]{
		targets:  targets,
		children: []*Output[A]{o, other},
	}
}

// Clone returns a new handle onto the same target(s), incrementing the
// relevant producer liveness counters. For a leaf Output this bumps the
// single target mailbox's producer refcount; for a Combine-derived Output
// it clones (and recombines) every constituent.
func (o *Output[A]) Clone() *Output[A] {
	if len(o.children) > 0 {
		cloned := o.children[0].Clone()
		for _, c := range o.children[1:] {
			cloned = cloned.Combine(c.Clone())
		}
		return cloned
	}

	if len(o.targets) == 0 {
		return EmptyOutput[A]()
	}

	o.targets[0].addProducerRef()
	return newLeafOutput(o.targets[0])
}

// Close releases this handle. For a leaf Output, this drops the producer
// refcount on its target mailbox, sealing it if no producer handle remains.
// For a Combine-derived Output, Close cascades to every constituent Output;
// EmptyOutput's Close is a no-op. Idempotent.
func (o *Output[A]) Close() {
	if !o.closed.setOnce() {
		return
	}

	if len(o.children) > 0 {
		for _, c := range o.children {
			c.Close()
		}
		return
	}

	if len(o.targets) == 1 {
		o.targets[0].releaseProducerRef()
	}
}
