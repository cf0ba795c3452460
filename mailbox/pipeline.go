package mailbox

import (
	"context"
	"iter"
)

// FromInput turns an Input into a lazy, restartable producer of values: one
// receive transaction per iteration, terminating as soon as Recv returns
// None. It drives no buffering beyond what the mailbox itself holds, per
// spec.md §4.6. The returned sequence is restartable in the sense that
// calling it again (e.g. ranging over it a second time after a prior early
// break) simply resumes issuing fresh Recv transactions against the same
// Input; it holds no iteration state of its own.
func FromInput[A any](ctx context.Context, in *Input[A]) iter.Seq[A] {
	return func(yield func(A) bool) {
		for {
			opt := in.Recv(ctx)
			if opt.IsNone() {
				return
			}

			var zero A
			v := opt.UnwrapOr(zero)

			if !yield(v) {
				return
			}
		}
	}
}

// ToOutput turns an Output into a consumer of values drawn from seq: each
// value is sent as its own transaction, and the consumer terminates
// cleanly the moment a Send returns false (the mailbox sealed, typically
// because every consumer handle went away). Per spec.md §4.6 this adapter
// does no buffering of its own either.
func ToOutput[A any](ctx context.Context, out *Output[A], seq iter.Seq[A]) {
	for v := range seq {
		if !out.Send(ctx, v) {
			return
		}
	}
}
