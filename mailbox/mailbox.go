// Package mailbox implements a concurrent mailbox primitive that brokers
// values between independent producer and consumer pipelines: composable
// buffering policies, sealing/liveness tracking, and the Output/Input
// endpoint types with their Monoid/Alternative combinators.
//
// There is no native STM in Go, so the "single atomic transaction" contract
// required by spec.md §5 is emulated with a mutex per mailbox plus a
// closed-channel broadcast for retry/wakeup, following the emulation recipe
// in spec.md §9: lock mailboxes in a globally consistent order for composite
// operations, and use combined predicates rather than polling.
package mailbox

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// nextMailboxID hands out a monotonically increasing identifier to every
// Mailbox on creation. Composite transactions (the Output monoid, the Input
// alternative) lock multiple mailboxes at once and must always do so in the
// same global order to avoid deadlock; this counter gives a cheap, safe
// total order without resorting to unsafe.Pointer arithmetic.
var nextMailboxID atomic.Uint64

// Mailbox is a shared broker between producer and consumer handles. It pairs
// a buffering discipline with a sealed flag and the two liveness counters
// described in spec.md §3. All exported mutation happens through Output and
// Input handles; Mailbox's fields, methods and constructor are unexported to
// keep lifecycle management (refcounting, sealing) centralized in
// Spawn/WithSpawn.
type Mailbox[A any] struct {
	// id orders this mailbox relative to others for composite-transaction
	// lock acquisition.
	id uint64

	// diagID is a human-readable identifier used only for logging.
	diagID string

	mu sync.Mutex

	buf buffer[A]

	sealed bool

	producerRefs int64
	consumerRefs int64

	// changed is closed and replaced every time mutable state changes
	// (a value is written, a value is read, the mailbox is sealed).
	// Transactions blocked in retry wait on the channel they observed
	// before giving up their lock; closing it wakes every waiter.
	changed chan struct{}
}

func newMailbox[A any](b Buffer[A]) *Mailbox[A] {
	return &Mailbox[A]{
		id:           nextMailboxID.Add(1),
		diagID:       uuid.NewString(),
		buf:          b.newBuffer(),
		producerRefs: 1,
		consumerRefs: 1,
		changed:      make(chan struct{}),
	}
}

// signalLocked wakes every transaction currently retrying on this mailbox.
// Callers must hold mu.
func (m *Mailbox[A]) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// sealLocked sets sealed and wakes waiters. Idempotent. Callers must hold mu.
func (m *Mailbox[A]) sealLocked() {
	if m.sealed {
		return
	}
	m.sealed = true
	m.signalLocked()
}

// seal transitions the mailbox to sealed. Idempotent, safe from any
// goroutine, matching the Seal thunk in spec.md §6.
func (m *Mailbox[A]) seal() {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.DebugS(context.Background(), "Sealing mailbox", "mailbox_id", m.diagID)

	m.sealLocked()
}

// trySend is the single-mailbox send transaction of spec.md §4.2: write the
// value if the mailbox accepts it, retry (block) if the buffer discipline
// reports Full, and fail if the mailbox is sealed.
func (m *Mailbox[A]) trySend(ctx context.Context, a A) bool {
	for {
		m.mu.Lock()

		if m.sealed {
			m.mu.Unlock()
			return false
		}

		switch m.buf.write(a) {
		case accepted:
			log.TraceS(ctx, "Mailbox send accepted", "mailbox_id", m.diagID)
			m.signalLocked()
			m.mu.Unlock()
			return true

		case full:
			wait := m.changed
			m.mu.Unlock()

			select {
			case <-wait:
				// Buffer state changed; re-evaluate.
			case <-ctx.Done():
				return false
			}
		}
	}
}

// tryRecv is the single-mailbox receive transaction of spec.md §4.2: return
// a value if one is available, retry (block) if the buffer is empty and the
// mailbox is live, and return ok=false once sealed and drained.
func (m *Mailbox[A]) tryRecv(ctx context.Context) (A, bool) {
	for {
		m.mu.Lock()

		if v, ok := m.buf.read(); ok {
			log.TraceS(ctx, "Mailbox recv succeeded", "mailbox_id", m.diagID)
			m.signalLocked()
			m.mu.Unlock()
			return v, true
		}

		if m.sealed {
			m.mu.Unlock()
			var zero A
			return zero, false
		}

		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero A
			return zero, false
		}
	}
}

// addProducerRef registers a new live producer handle.
func (m *Mailbox[A]) addProducerRef() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.producerRefs++
}

// releaseProducerRef drops a producer handle, sealing the mailbox once the
// count reaches zero (spec.md §3: "producerRefs: 1 -> 0 causes an implicit
// seal").
func (m *Mailbox[A]) releaseProducerRef() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.producerRefs--
	if m.producerRefs <= 0 {
		m.sealLocked()
	}
}

// addConsumerRef registers a new live consumer handle.
func (m *Mailbox[A]) addConsumerRef() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumerRefs++
}

// releaseConsumerRef drops a consumer handle, sealing the mailbox once the
// count reaches zero (spec.md §3: "consumerRefs: 1 -> 0 causes an implicit
// seal"), so a producer blocked on a full buffer observes send -> false
// instead of blocking forever.
func (m *Mailbox[A]) releaseConsumerRef() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumerRefs--
	if m.consumerRefs <= 0 {
		m.sealLocked()
	}
}

// lockMailboxesSorted locks a set of mailboxes in a globally consistent
// order (by creation id) so that two composite transactions racing over
// overlapping mailbox sets can never deadlock against each other. Duplicate
// mailboxes (the same Output appearing twice in a combine tree) are locked
// only once.
func lockMailboxesSorted[A any](boxes []*Mailbox[A]) []*Mailbox[A] {
	seen := make(map[uint64]struct{}, len(boxes))
	unique := make([]*Mailbox[A], 0, len(boxes))
	for _, b := range boxes {
		if _, ok := seen[b.id]; ok {
			continue
		}
		seen[b.id] = struct{}{}
		unique = append(unique, b)
	}

	sort.Slice(unique, func(i, j int) bool {
		return unique[i].id < unique[j].id
	})

	for _, b := range unique {
		b.mu.Lock()
	}

	return unique
}

func unlockMailboxes[A any](boxes []*Mailbox[A]) {
	for _, b := range boxes {
		b.mu.Unlock()
	}
}

// waitAnyClosed blocks until any one of the given channels closes or ctx is
// done. It is the fan-in primitive composite transactions use to retry: each
// mailbox's "changed" channel is a candidate wakeup source, and the set size
// is only known at runtime, so a dynamic reflect.Select replaces a static
// select statement here.
func waitAnyClosed(ctx context.Context, chans []chan struct{}) {
	cases := make([]reflect.SelectCase, 0, len(chans)+1)
	for _, c := range chans {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(c),
		})
	}
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})

	reflect.Select(cases)
}
