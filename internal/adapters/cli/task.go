package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage production orders",
	Long:  `Create, list and manage production orders and their lifecycle.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [order-number]",
	Short: "Create a new production order",
	Long: `Register a new production order. Duration and cost are computed from
the phase parameters and the required quantity.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List production orders",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a production order",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStartCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Record the production-start event",
	Long: `Mark a scheduled order as in progress. From this point its window is
fixed: it will not move in cascades or reorders.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskStart,
}

var taskProgressCmd = &cobra.Command{
	Use:   "progress [id] [pieces]",
	Short: "Record produced pieces",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskProgress,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete [id]",
	Short: "Complete a production order",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskComplete,
}

var taskResizeCmd = &cobra.Command{
	Use:   "resize [id] [required-qty]",
	Short: "Change the required quantity",
	Long: `Change the required quantity of an order. Duration and cost are
recomputed; if the order is scheduled and shrinks, later orders on the same
machine are pulled earlier automatically.`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskResize,
}

var (
	taskQty          int
	taskDepartment   string
	taskWorkCenter   string
	taskCycleMinutes float64
	taskSetupMinutes float64
	taskHourlyRate   float64
	taskUnitCost     float64
	taskBagStep      int
	taskPhaseName    string
	taskFilterStatus string
	taskLimit        int
)

func init() {
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskProgressCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskResizeCmd)

	taskCreateCmd.Flags().IntVar(&taskQty, "qty", 0, "Required quantity in pieces")
	taskCreateCmd.Flags().StringVar(&taskDepartment, "department", "", "Department")
	taskCreateCmd.Flags().StringVar(&taskWorkCenter, "work-center", "", "Work center")
	taskCreateCmd.Flags().StringVar(&taskPhaseName, "phase", "", "Phase name")
	taskCreateCmd.Flags().Float64Var(&taskCycleMinutes, "cycle-minutes", 0, "Cycle time per piece in minutes")
	taskCreateCmd.Flags().Float64Var(&taskSetupMinutes, "setup-minutes", 0, "Setup time in minutes")
	taskCreateCmd.Flags().Float64Var(&taskHourlyRate, "hourly-rate", 0, "Machine hourly rate")
	taskCreateCmd.Flags().Float64Var(&taskUnitCost, "unit-cost", 0, "Material cost per piece")
	taskCreateCmd.Flags().IntVar(&taskBagStep, "bag-step", 0, "Pieces per bag (quantities round up to whole bags)")
	taskCreateCmd.MarkFlagRequired("qty")
	taskCreateCmd.MarkFlagRequired("cycle-minutes")

	taskListCmd.Flags().StringVar(&taskFilterStatus, "status", "", "Filter by status (NOT_SCHEDULED, SCHEDULED, IN_PROGRESS, COMPLETED)")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 50, "Maximum number of orders to show")
}

func callTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	phase := map[string]interface{}{
		"name":          taskPhaseName,
		"cycle_minutes": taskCycleMinutes,
		"setup_minutes": taskSetupMinutes,
		"hourly_rate":   taskHourlyRate,
		"unit_cost":     taskUnitCost,
	}
	if taskBagStep > 0 {
		phase["bag_step"] = taskBagStep
	}

	ctx, cancel := callTimeout()
	defer cancel()

	task, err := client.CreateTask(ctx, map[string]interface{}{
		"order_number": args[0],
		"required_qty": taskQty,
		"department":   taskDepartment,
		"work_center":  taskWorkCenter,
		"phase":        phase,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Order created\n")
	fmt.Printf("  ID:       %v\n", task["id"])
	fmt.Printf("  Order:    %v\n", task["order_number"])
	fmt.Printf("  Duration: %vh\n", task["duration_hours"])
	fmt.Printf("  Cost:     %v\n", task["cost"])
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	tasks, err := client.ListTasks(ctx, taskFilterStatus)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("(no orders)")
		return nil
	}

	fmt.Printf("%-36s  %-12s  %-13s  %8s  %s\n", "ID", "ORDER", "STATUS", "DURATION", "WINDOW")
	shown := 0
	for _, raw := range tasks {
		if taskLimit > 0 && shown >= taskLimit {
			break
		}
		task, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		window := ""
		if start, ok := task["start_at"].(string); ok {
			end, _ := task["end_at"].(string)
			window = fmt.Sprintf("%s → %s", start, end)
		}
		fmt.Printf("%-36v  %-12v  %-13v  %7vh  %s\n",
			task["id"], task["order_number"], task["status"], task["duration_hours"], window)
		shown++
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	task, err := client.GetTask(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Order %v\n", task["order_number"])
	fmt.Printf("  ID:         %v\n", task["id"])
	fmt.Printf("  Status:     %v\n", task["status"])
	fmt.Printf("  Required:   %v pieces\n", task["required_qty"])
	fmt.Printf("  Completed:  %v pieces\n", task["completed_qty"])
	fmt.Printf("  Duration:   %vh\n", task["duration_hours"])
	fmt.Printf("  Cost:       %v\n", task["cost"])
	if machine, ok := task["machine_id"].(string); ok {
		fmt.Printf("  Machine:    %s\n", machine)
		fmt.Printf("  Window:     %v → %v\n", task["start_at"], task["end_at"])
	}
	return nil
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	if _, err := client.Call(ctx, "task.start", map[string]interface{}{"id": args[0]}); err != nil {
		return err
	}
	fmt.Printf("✓ Order %s is now in progress\n", args[0])
	return nil
}

func runTaskProgress(cmd *cobra.Command, args []string) error {
	var pieces int
	if _, err := fmt.Sscanf(args[1], "%d", &pieces); err != nil {
		return fmt.Errorf("invalid piece count: %s", args[1])
	}

	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	task, err := client.Call(ctx, "task.progress", map[string]interface{}{
		"id":     args[0],
		"pieces": pieces,
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ %v/%v pieces completed\n", task["completed_qty"], task["required_qty"])
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	if _, err := client.Call(ctx, "task.complete", map[string]interface{}{"id": args[0]}); err != nil {
		return err
	}
	fmt.Printf("✓ Order %s completed\n", args[0])
	return nil
}

func runTaskResize(cmd *cobra.Command, args []string) error {
	var qty int
	if _, err := fmt.Sscanf(args[1], "%d", &qty); err != nil {
		return fmt.Errorf("invalid quantity: %s", args[1])
	}

	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	result, err := client.Call(ctx, "task.resize", map[string]interface{}{
		"id":           args[0],
		"required_qty": qty,
	})
	if err != nil {
		return err
	}

	printScheduleResult(result)
	return nil
}
