package actor

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/roasbeef/subtrate/mailbox"
)

// ChannelMailbox is a Mailbox implementation backed by a mailbox.Mailbox with
// a Bounded buffer discipline, rather than a bare Go channel. Back-pressure,
// sealing, and liveness tracking are delegated to the mailbox package; this
// type's job is to adapt that generic broker to the actor runtime's
// envelope-oriented Mailbox interface.
type ChannelMailbox[M Message, R any] struct {
	// out is the send side of the underlying mailbox.
	out *mailbox.Output[envelope[M, R]]

	// in is the receive side of the underlying mailbox.
	in *mailbox.Input[envelope[M, R]]

	// closed mirrors whether Close has been called. The mailbox package
	// doesn't expose a public "is sealed" query, so the actor runtime's
	// IsClosed is tracked independently here.
	closed atomic.Bool

	// actorCtx is the context governing the actor's lifecycle. When this
	// context is cancelled, both Send and Receive operations end.
	actorCtx context.Context
}

// NewChannelMailbox creates a new mailbox with the given capacity and actor
// context. If capacity is 0 or negative, it defaults to 1 to ensure the
// mailbox is buffered.
func NewChannelMailbox[M Message, R any](
	actorCtx context.Context, capacity int,
) *ChannelMailbox[M, R] {
	if capacity <= 0 {
		capacity = 1
	}

	out, in, _ := mailbox.Spawn[envelope[M, R]](
		mailbox.Bounded[envelope[M, R]](capacity),
	)

	return &ChannelMailbox[M, R]{
		out:      out,
		in:       in,
		actorCtx: actorCtx,
	}
}

// closedCtx returns an already-cancelled context. Driving a mailbox
// transaction with it gives non-blocking "try" semantics on top of the
// mailbox package's always-resolves contract: a transaction that can commit
// immediately still commits (mailbox.(*Output).Send and mailbox.(*Input).Recv
// only consult ctx on the retry path), while one that would have to wait
// observes ctx.Done() right away and bails out instead of blocking.
func closedCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Send attempts to send an envelope to the mailbox. It blocks until either
// the envelope is accepted, the caller's context is cancelled, or the
// actor's context is cancelled. Returns true if the envelope was
// successfully sent, false otherwise.
func (m *ChannelMailbox[M, R]) Send(ctx context.Context,
	env envelope[M, R],
) bool {
	if ctx.Err() != nil || m.actorCtx.Err() != nil {
		return false
	}

	sendCtx, cancel := mergeContexts(ctx, m.actorCtx)
	defer cancel()

	ok := m.out.Send(sendCtx, env)

	log.TraceS(ctx, "Mailbox send attempted",
		"msg_type", env.message.MessageType(), "accepted", ok)

	return ok
}

// TrySend attempts to send an envelope to the mailbox without blocking. It
// returns true if the envelope was successfully sent, false if the mailbox
// is full, closed, or the actor has been terminated.
func (m *ChannelMailbox[M, R]) TrySend(env envelope[M, R]) bool {
	if m.actorCtx.Err() != nil {
		return false
	}

	return m.out.Send(closedCtx(), env)
}

// Receive returns an iterator over envelopes in the mailbox. The iterator
// yields envelopes as they arrive and stops when the provided context is
// cancelled or the mailbox is sealed and drained.
func (m *ChannelMailbox[M, R]) Receive(
	ctx context.Context,
) iter.Seq[envelope[M, R]] {
	recvCtx, cancel := mergeContexts(ctx, m.actorCtx)

	return func(yield func(envelope[M, R]) bool) {
		defer cancel()

		// Check the context before each receive: Input.Recv delivers
		// buffered envelopes even once ctx is cancelled, and those are
		// left for Drain instead.
		if recvCtx.Err() != nil {
			return
		}

		for v := range mailbox.FromInput(recvCtx, m.in) {
			if !yield(v) || recvCtx.Err() != nil {
				return
			}
		}
	}
}

// Close closes the mailbox, preventing any further sends. Safe to call
// multiple times; only the first call has an effect.
func (m *ChannelMailbox[M, R]) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	log.DebugS(m.actorCtx, "Mailbox closing")

	m.out.Close()
}

// IsClosed returns true if Close has been called on this mailbox.
func (m *ChannelMailbox[M, R]) IsClosed() bool {
	return m.closed.Load()
}

// Drain returns an iterator over any remaining envelopes in the mailbox.
// This should only be called after Close(). Each step is a non-blocking
// attempt via a pre-cancelled context, so the iterator stops as soon as
// nothing more is queued.
func (m *ChannelMailbox[M, R]) Drain() iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		if !m.IsClosed() {
			return
		}

		for {
			opt := m.in.Recv(closedCtx())
			if opt.IsNone() {
				return
			}

			var zero envelope[M, R]
			env := opt.UnwrapOr(zero)

			if !yield(env) {
				return
			}
		}
	}
}
