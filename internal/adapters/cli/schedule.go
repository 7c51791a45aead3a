package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Place, move and remove orders on machine queues",
	Long: `Scheduling operations. A rejected placement is not an error: the
result names the conflicting order or the blocked hour, so the request can
be adjusted and retried.`,
}

var scheduleSlotCmd = &cobra.Command{
	Use:   "slot [task-id]",
	Short: "Place an order at an explicit UTC slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleSlot,
}

var scheduleAppendCmd = &cobra.Command{
	Use:   "append [task-id]",
	Short: "Place an order at the earliest feasible window at the end of a queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleAppend,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove [task-id]",
	Short: "Remove an order from its queue",
	Long:  `Return a scheduled order to the unscheduled pool. In-progress orders are refused.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleReorderCmd = &cobra.Command{
	Use:   "reorder [task-id]",
	Short: "Move an order to a new position in its queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleReorder,
}

var (
	slotMachine  string
	slotDate     string
	slotHour     int
	slotMinute   int
	slotDuration float64
	reorderFrom  int
	reorderTo    int
)

func init() {
	scheduleCmd.AddCommand(scheduleSlotCmd)
	scheduleCmd.AddCommand(scheduleAppendCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleReorderCmd)

	scheduleSlotCmd.Flags().StringVar(&slotMachine, "machine", "", "Machine name or id")
	scheduleSlotCmd.Flags().StringVar(&slotDate, "date", "", "UTC date (YYYY-MM-DD)")
	scheduleSlotCmd.Flags().IntVar(&slotHour, "hour", 0, "Hour 0-23")
	scheduleSlotCmd.Flags().IntVar(&slotMinute, "minute", 0, "Minute 0-59")
	scheduleSlotCmd.Flags().Float64Var(&slotDuration, "duration", 0, "Override duration in hours (e.g. remaining work)")
	scheduleSlotCmd.MarkFlagRequired("machine")
	scheduleSlotCmd.MarkFlagRequired("date")

	scheduleAppendCmd.Flags().StringVar(&slotMachine, "machine", "", "Machine name or id")
	scheduleAppendCmd.MarkFlagRequired("machine")

	scheduleReorderCmd.Flags().StringVar(&slotMachine, "machine", "", "Machine name or id")
	scheduleReorderCmd.Flags().IntVar(&reorderFrom, "from", -1, "Current queue index")
	scheduleReorderCmd.Flags().IntVar(&reorderTo, "to", -1, "Target queue index")
	scheduleReorderCmd.MarkFlagRequired("machine")
	scheduleReorderCmd.MarkFlagRequired("from")
	scheduleReorderCmd.MarkFlagRequired("to")
}

func runScheduleSlot(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	machineID, err := resolveMachine(ctx, client, slotMachine)
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"task_id":    args[0],
		"machine_id": machineID,
		"date":       slotDate,
		"hour":       slotHour,
		"minute":     slotMinute,
	}
	if slotDuration > 0 {
		params["duration_hours"] = slotDuration
	}

	result, err := client.ScheduleSlot(ctx, params)
	if err != nil {
		return err
	}

	printScheduleResult(result)
	return nil
}

func runScheduleAppend(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	machineID, err := resolveMachine(ctx, client, slotMachine)
	if err != nil {
		return err
	}

	result, err := client.ScheduleAppend(ctx, args[0], machineID)
	if err != nil {
		return err
	}

	printScheduleResult(result)
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	result, err := client.Call(ctx, "schedule.remove", map[string]interface{}{"task_id": args[0]})
	if err != nil {
		return err
	}

	printScheduleResult(result)
	return nil
}

func runScheduleReorder(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	machineID, err := resolveMachine(ctx, client, slotMachine)
	if err != nil {
		return err
	}

	result, err := client.Call(ctx, "schedule.reorder", map[string]interface{}{
		"task_id":    args[0],
		"machine_id": machineID,
		"old_index":  reorderFrom,
		"new_index":  reorderTo,
	})
	if err != nil {
		return err
	}

	printScheduleResult(result)
	return nil
}

// printScheduleResult renders the engine's result envelope: either the
// committed windows or the conflict that blocked the request.
func printScheduleResult(result map[string]interface{}) {
	if result == nil {
		fmt.Println("✓ Done")
		return
	}

	if success, _ := result["success"].(bool); success {
		fmt.Println("✓ Schedule committed")
		if task, ok := result["updated_task"].(map[string]interface{}); ok {
			if start, ok := task["start_at"].(string); ok {
				fmt.Printf("  Window: %s → %v\n", start, task["end_at"])
			}
		}
		if moved, ok := result["rescheduled_tasks"].([]interface{}); ok && len(moved) > 0 {
			fmt.Printf("  %d later order(s) moved:\n", len(moved))
			for _, raw := range moved {
				if task, ok := raw.(map[string]interface{}); ok {
					fmt.Printf("    %v: %v → %v\n", task["order_number"], task["start_at"], task["end_at"])
				}
			}
		}
		return
	}

	conflict, _ := result["conflict"].(map[string]interface{})
	if conflict == nil {
		fmt.Println("✗ Rejected")
		return
	}

	fmt.Println("✗ Conflict")
	fmt.Printf("  Reason: %v\n", conflict["reason"])
	if taskID, ok := conflict["task_id"].(string); ok {
		fmt.Printf("  Conflicting order: %s\n", taskID)
	}
	if requested, ok := conflict["requested"].(map[string]interface{}); ok {
		fmt.Printf("  Requested window: %v → %v\n", requested["start"], requested["end"])
	}
	fmt.Println("  Adjust the request and retry.")
}
