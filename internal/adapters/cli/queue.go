package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue [machine]",
	Short: "Show a machine's committed queue",
	Long:  `Display the chronological queue of committed windows on a machine.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQueue,
}

func runQueue(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	machineID, err := resolveMachine(ctx, client, args[0])
	if err != nil {
		return err
	}

	entries, err := client.GetQueue(ctx, machineID)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Printf("Queue for %s is empty\n", args[0])
		return nil
	}

	fmt.Printf("Queue for %s (%d entries):\n", args[0], len(entries))
	fmt.Printf("%3s  %-36s  %s\n", "#", "TASK", "WINDOW")
	for i, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		window, _ := entry["window"].(map[string]interface{})
		start, end := "", ""
		if window != nil {
			start, _ = window["start"].(string)
			end, _ = window["end"].(string)
		}
		fmt.Printf("%3d  %-36v  %s → %s\n", i, entry["task_id"], start, end)
	}
	return nil
}
