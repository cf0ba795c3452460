package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScenarioUnboundedSenderClose is S1 from spec.md §8: a producer sends
// 1..5 then drops its Output; a consumer reading with a small per-item
// delay receives exactly 1 2 3 4 5, then observes exhaustion, in bounded
// time.
func TestScenarioUnboundedSenderClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, in, _ := Spawn[int](Unbounded[int]())

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
		}
		out.Close()
	}()

	var got []int
	for v := range FromInput(ctx, in) {
		got = append(got, v)
		time.Sleep(time.Millisecond)
	}

	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

// TestScenarioBoundedFilledSenderClose is S2: same as S1 with a Bounded(3)
// mailbox. The producer blocks once the buffer fills and drains as the
// consumer reads; all 5 values are still delivered in order.
func TestScenarioBoundedFilledSenderClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, in, _ := Spawn[int](Bounded[int](3))

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
		}
		out.Close()
	}()

	var got []int
	for v := range FromInput(ctx, in) {
		got = append(got, v)
		time.Sleep(time.Millisecond)
	}

	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

// TestScenarioLatestSenderCloseTimesOut is S3: Latest's read never returns
// Empty, so tryRecv never blocks and never consults any context - it is
// unbounded on the send side and always-ready on the receive side. A
// reader that loops until it sees None therefore never terminates on its
// own while the mailbox stays live; per spec.md §8, only an external
// harness timeout (or an explicit Seal) ends such a loop. This test
// verifies exactly that: the reader goroutine must still be running after
// a bounded wait, because it can only be stopped from outside.
func TestScenarioLatestSenderCloseTimesOut(t *testing.T) {
	t.Parallel()

	out, in, _ := Spawn[int](Latest[int](42))
	defer out.Close()

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for i := 1; i <= 5; i++ {
			out.Send(context.Background(), i)
			time.Sleep(2 * time.Millisecond)
		}
	}()
	<-stop

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		ctx := context.Background()
		for {
			if in.Recv(ctx).IsNone() {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	select {
	case <-readerDone:
		t.Fatal("a live Latest mailbox must never surface None on its own")
	case <-time.After(100 * time.Millisecond):
		// Expected: the reader is still spinning, exactly as spec.md
		// §8 S3 describes - only an external timeout ends it.
	}
}

// TestScenarioNewestSenderClose is S4: a producer sends 1..5 through
// Newest(1) with small spacing; a consumer reading with its own spacing
// observes a monotone subsequence of 1..5 that always ends in 5, then None,
// with no value delivered twice.
func TestScenarioNewestSenderClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, in, _ := Spawn[int](Newest[int](1))

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
			time.Sleep(2 * time.Millisecond)
		}
		out.Close()
	}()

	var got []int
	for v := range FromInput(ctx, in) {
		got = append(got, v)
		time.Sleep(time.Millisecond)
	}

	require.NotEmpty(t, got)
	require.Equal(t, 5, got[len(got)-1])

	seen := make(map[int]bool)
	last := 0
	for _, v := range got {
		require.False(t, seen[v], "value %d delivered twice", v)
		seen[v] = true
		require.Greater(t, v, last)
		last = v
	}
}

// TestScenarioBoundedReceiverClose is S5: a producer sends 1..infinity
// through Bounded(3); the consumer takes 10 values then drops its Input.
// The producer's next send observes the seal and returns false.
func TestScenarioBoundedReceiverClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, in, _ := Spawn[int](Bounded[int](3))

	sendResults := make(chan bool, 1)
	go func() {
		ok := true
		for i := 1; ok; i++ {
			ok = out.Send(ctx, i)
		}
		sendResults <- ok
	}()

	var got []int
	for i := 0; i < 10; i++ {
		opt := in.Recv(ctx)
		require.True(t, opt.IsSome())
		got = append(got, opt.UnwrapOr(-1))
	}
	in.Close()

	expected := make([]int, 10)
	for i := range expected {
		expected[i] = i + 1
	}
	require.Equal(t, expected, got)

	select {
	case ok := <-sendResults:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("producer never observed the consumer's departure")
	}
}

// TestScenarioBroadcast is S6: two unbounded mailboxes joined by the Output
// monoid; a producer fans values out to both, each consumer takes 2 values
// then drops its Input; the third send returns false and the producer
// terminates.
func TestScenarioBroadcast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out1, in1, _ := Spawn[string](Unbounded[string]())
	out2, in2, _ := Spawn[string](Unbounded[string]())
	combined := out1.Combine(out2)

	// Unbounded never blocks the producer, so both lines land before
	// either consumer reads - driving this in lockstep on one goroutine
	// keeps the scenario deterministic instead of racing sends against
	// reads.
	require.True(t, combined.Send(ctx, "line1"))
	require.True(t, combined.Send(ctx, "line2"))

	readTwo := func(in *Input[string]) []string {
		var got []string
		for i := 0; i < 2; i++ {
			opt := in.Recv(ctx)
			require.True(t, opt.IsSome())
			got = append(got, opt.UnwrapOr(""))
		}
		in.Close()
		return got
	}

	got1 := readTwo(in1)
	got2 := readTwo(in2)

	require.Equal(t, []string{"line1", "line2"}, got1)
	require.Equal(t, []string{"line1", "line2"}, got2)

	// Both consumers have departed, so the broadcast's third send finds
	// every target sealed.
	require.False(t, combined.Send(ctx, "line3"))
}
