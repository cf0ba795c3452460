package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/subtrate/mailbox"
	"github.com/spf13/cobra"
)

var scenarioName string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a producer/consumer mailbox scenario",
	Long: `Run one of the canonical single-mailbox scenarios against a real
producer and consumer goroutine pair, printing each value as it's
delivered. Use --scenario to pick one of: unbounded, bounded, latest,
newest, bounded-receiver-close.`,
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringVar(
		&scenarioName, "scenario", "unbounded",
		"Scenario to run: unbounded, bounded, latest, newest, "+
			"bounded-receiver-close",
	)
}

func runScenario(cmd *cobra.Command, args []string) error {
	switch scenarioName {
	case "unbounded":
		return runUnboundedSenderClose(cmd.Context())
	case "bounded":
		return runBoundedFilledSenderClose(cmd.Context())
	case "latest":
		return runLatestSenderClose(cmd.Context())
	case "newest":
		return runNewestSenderClose(cmd.Context())
	case "bounded-receiver-close":
		return runBoundedReceiverClose(cmd.Context())
	default:
		return fmt.Errorf("unknown scenario %q", scenarioName)
	}
}

// runUnboundedSenderClose is spec scenario S1: a producer sends 1..5 into
// an Unbounded mailbox then drops its Output; a consumer reading with a
// small per-item delay prints exactly 1 2 3 4 5, then observes exhaustion.
func runUnboundedSenderClose(ctx context.Context) error {
	out, in, _ := mailbox.Spawn[int](mailbox.Unbounded[int]())

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
		}
		out.Close()
	}()

	for v := range mailbox.FromInput(ctx, in) {
		fmt.Println(v)
		time.Sleep(time.Millisecond)
	}

	return nil
}

// runBoundedFilledSenderClose is spec scenario S2: same as S1 through a
// Bounded(3) mailbox. The producer blocks once the buffer fills and drains
// as the consumer reads; all 5 values still arrive in order.
func runBoundedFilledSenderClose(ctx context.Context) error {
	out, in, _ := mailbox.Spawn[int](mailbox.Bounded[int](3))

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
		}
		out.Close()
	}()

	for v := range mailbox.FromInput(ctx, in) {
		fmt.Println(v)
		time.Sleep(time.Millisecond)
	}

	return nil
}

// runLatestSenderClose is spec scenario S3. Latest's read never surfaces
// None, so a reader looping until exhaustion never terminates on its own;
// only an external bound (here, a fixed run time) ends the demonstration.
func runLatestSenderClose(ctx context.Context) error {
	out, in, _ := mailbox.Spawn[int](mailbox.Latest[int](42))
	defer out.Close()

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
			time.Sleep(2 * time.Millisecond)
		}
	}()

	fmt.Println("latest never surfaces None while live; " +
		"stopping after a fixed timeout instead of waiting forever")

	for {
		opt := in.Recv(runCtx)
		if opt.IsNone() {
			return nil
		}
		fmt.Println(opt.UnwrapOr(0))
		time.Sleep(time.Millisecond)
	}
}

// runNewestSenderClose is spec scenario S4: a producer sends 1..5 through
// Newest(1); the consumer observes a monotone subsequence ending in 5,
// then None, with no value delivered twice.
func runNewestSenderClose(ctx context.Context) error {
	out, in, _ := mailbox.Spawn[int](mailbox.Newest[int](1))

	go func() {
		for i := 1; i <= 5; i++ {
			out.Send(ctx, i)
			time.Sleep(2 * time.Millisecond)
		}
		out.Close()
	}()

	for v := range mailbox.FromInput(ctx, in) {
		fmt.Println(v)
		time.Sleep(time.Millisecond)
	}

	return nil
}

// runBoundedReceiverClose is spec scenario S5: a producer sends 1..infinity
// through Bounded(3); the consumer takes 10 values then drops its Input.
// The producer's next send observes the seal and returns false.
func runBoundedReceiverClose(ctx context.Context) error {
	out, in, _ := mailbox.Spawn[int](mailbox.Bounded[int](3))

	done := make(chan bool, 1)
	go func() {
		ok := true
		for i := 1; ok; i++ {
			ok = out.Send(ctx, i)
		}
		done <- ok
	}()

	for i := 0; i < 10; i++ {
		opt := in.Recv(ctx)
		if opt.IsNone() {
			break
		}
		fmt.Println(opt.UnwrapOr(0))
	}
	in.Close()

	<-done
	fmt.Println("producer observed the consumer's departure, terminating")

	return nil
}
