package mailbox

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestPropertyDrainAfterSeal checks spec.md §8 property 1: for any sequence
// of n successful sends into a FIFO-discipline mailbox followed by seal, a
// consumer receives exactly those n values in send order, then None.
func TestPropertyDrainAfterSeal(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOfN(rapid.IntRange(0, 1000), 0, 64).Draw(rt, "values")

		ctx := context.Background()
		mb := newMailbox[int](Unbounded[int]())

		for _, v := range values {
			if !mb.trySend(ctx, v) {
				rt.Fatalf("send should not fail before seal")
			}
		}
		mb.seal()

		for _, want := range values {
			got, ok := mb.tryRecv(ctx)
			if !ok || got != want {
				rt.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
			}
		}

		if _, ok := mb.tryRecv(ctx); ok {
			rt.Fatalf("expected None after drain")
		}
	})
}

// TestPropertyNewestLossBound checks spec.md §8 property 5: a Newest(n)
// mailbox that has received m > n sends contains exactly the last n values.
func TestPropertyNewestLossBound(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		values := rapid.SliceOfN(rapid.IntRange(0, 1000), 0, 64).Draw(rt, "values")

		ctx := context.Background()
		mb := newMailbox[int](Newest[int](n))

		for _, v := range values {
			if !mb.trySend(ctx, v) {
				rt.Fatalf("Newest send should never fail before seal")
			}
		}
		mb.seal()

		want := values
		if len(want) > n {
			want = want[len(want)-n:]
		}

		var got []int
		for {
			v, ok := mb.tryRecv(ctx)
			if !ok {
				break
			}
			got = append(got, v)
		}

		if len(got) != len(want) {
			rt.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				rt.Fatalf("expected %v, got %v", want, got)
			}
		}
	})
}

// TestPropertySealIsTerminal checks spec.md §8 property 3: once sealed,
// every subsequent send returns false, for every buffer discipline.
func TestPropertySealIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	disciplines := map[string]Buffer[int]{
		"unbounded": Unbounded[int](),
		"bounded":   Bounded[int](3),
		"single":    Single[int](),
		"latest":    Latest[int](0),
		"newest":    Newest[int](2),
		"new":       New[int](),
	}

	for name, b := range disciplines {
		name, b := name, b
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			mb := newMailbox[int](b)
			mb.seal()

			rapid.Check(t, func(rt *rapid.T) {
				v := rapid.Int().Draw(rt, "v")
				if mb.trySend(ctx, v) {
					rt.Fatalf("%s: send after seal should always fail", name)
				}
			})
		})
	}
}

// TestPropertyLatestLiveness checks spec.md §8 property 4: a Latest(v0)
// mailbox's recv always returns Some while unsealed, and after k sends of
// v1..vk, the next recv returns Some(vk).
func TestPropertyLatestLiveness(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		init := rapid.Int().Draw(rt, "init")
		values := rapid.SliceOfN(rapid.Int(), 0, 32).Draw(rt, "values")

		ctx := context.Background()
		mb := newMailbox[int](Latest[int](init))

		want := init
		if len(values) > 0 {
			want = values[len(values)-1]
		}
		for _, v := range values {
			if !mb.trySend(ctx, v) {
				rt.Fatalf("Latest send should never fail before seal")
			}
		}

		got, ok := mb.tryRecv(ctx)
		if !ok {
			rt.Fatalf("Latest recv should always succeed while unsealed")
		}
		if got != want {
			rt.Fatalf("expected %d, got %d", want, got)
		}

		// Reading again returns the same value: Latest peeks, it never
		// consumes.
		got2, ok := mb.tryRecv(ctx)
		if !ok || got2 != want {
			rt.Fatalf("Latest read should be idempotent; expected %d, got %d", want, got2)
		}
	})
}

// TestPropertyNoDeadlockInCycles checks spec.md §8 property 10: given two
// mailboxes wired producer->consumer->producer->consumer in a cycle, if any
// one consumer bounds its intake, both branches terminate.
//
// Mailbox A and B are wired into a cycle: a forwarder relays every value it
// reads from A into B, and a bounded consumer relays every value it reads
// from B back into A, incrementing it, but stops after k reads. Once it
// stops, it drops both its B consumer handle and its (cloned) A producer
// handle - the cascading seal this triggers must unwind the whole cycle
// within the bounded time this test allows, never leaving either goroutine
// blocked forever.
func TestPropertyNoDeadlockInCycles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	outA, inA, _ := Spawn[int](Unbounded[int]())
	outB, inB, _ := Spawn[int](Unbounded[int]())

	// outA has two producer handles: this goroutine's (closed right
	// after seeding) and a clone the bounded consumer owns. A only
	// seals once both are gone, which must wait on the bounded
	// consumer's departure, not this goroutine's.
	outAClone := outA.Clone()

	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		defer outB.Close()

		for v := range FromInput(ctx, inA) {
			outB.Send(ctx, v)
		}
	}()

	const k = 3
	boundedDone := make(chan struct{})
	go func() {
		defer close(boundedDone)
		defer outAClone.Close()
		defer inB.Close()

		for i := 0; i < k; i++ {
			opt := inB.Recv(ctx)
			if opt.IsNone() {
				return
			}
			outAClone.Send(ctx, opt.UnwrapOr(0)+1)
		}
	}()

	outA.Send(ctx, 0)
	outA.Close()

	select {
	case <-forwarderDone:
	case <-time.After(time.Second):
		t.Fatal("producer->consumer side of the cycle never terminated")
	}
	select {
	case <-boundedDone:
	case <-time.After(time.Second):
		t.Fatal("bounded consumer->producer side of the cycle never terminated")
	}
}

// TestPropertyOutputMonoidLaw checks spec.md §8 property 7: send(o1<>o2, a)
// returns true iff at least one of send(o1,a), send(o2,a) would have
// returned true.
func TestPropertyOutputMonoidLaw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		seal1 := rapid.Bool().Draw(rt, "seal1")
		seal2 := rapid.Bool().Draw(rt, "seal2")

		out1, _, s1 := Spawn[int](Unbounded[int]())
		out2, _, s2 := Spawn[int](Unbounded[int]())

		if seal1 {
			s1()
		}
		if seal2 {
			s2()
		}

		combined := out1.Combine(out2)
		got := combined.Send(ctx, 1)
		want := !seal1 || !seal2

		if got != want {
			rt.Fatalf("seal1=%v seal2=%v: expected combined send=%v, got %v",
				seal1, seal2, want, got)
		}

		s1()
		s2()
	})
}
