package commands

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/roasbeef/subtrate/mailbox"
	"github.com/spf13/cobra"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Fan stdin lines out to two consumers via the Output monoid",
	Long: `Spawns two Unbounded mailboxes joined by Output.Combine (spec
scenario S6) and fans each line of stdin to both. Each consumer takes its
first two lines then drops its Input; the next send observes both targets
sealed and returns false, ending the broadcast.`,
	RunE: runBroadcast,
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	out1, in1, _ := mailbox.Spawn[string](mailbox.Unbounded[string]())
	out2, in2, _ := mailbox.Spawn[string](mailbox.Unbounded[string]())
	combined := out1.Combine(out2)

	var wg sync.WaitGroup
	consume := func(name string, in *mailbox.Input[string]) {
		defer wg.Done()

		for i := 0; i < 2; i++ {
			opt := in.Recv(ctx)
			if opt.IsNone() {
				return
			}
			fmt.Printf("%s: %s\n", name, opt.UnwrapOr(""))
		}
		in.Close()
	}

	wg.Add(2)
	go consume("consumer-1", in1)
	go consume("consumer-2", in2)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !combined.Send(ctx, scanner.Text()) {
			fmt.Println("broadcast: both consumers have departed, stopping")
			break
		}
	}

	wg.Wait()

	return scanner.Err()
}
