package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/adapters/daemon"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Manage the machine park",
	Long:  `List machines, import a machine catalog and manage availability overrides.`,
}

var machineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List machines",
	RunE:  runMachineList,
}

var machineImportCmd = &cobra.Command{
	Use:   "import [catalog.yaml]",
	Short: "Import a machine catalog",
	Long: `Import machines from a yaml catalog:

  machines:
    - name: EXT-01
      work_center: WC-EXT
      department: plastics
      shifts: [T1, T2]
    - name: MILL-02
      work_center: WC-MILL
      department: metals
      shifts: [T1, T2, T3]`,
	Args: cobra.ExactArgs(1),
	RunE: runMachineImport,
}

var machineUnavailableCmd = &cobra.Command{
	Use:   "unavailable [machine]",
	Short: "Block or clear hours on a machine's calendar",
	Long: `Mark specific clock hours as unavailable on a UTC date, overriding the
shift calendar, or clear all overrides for the date with --clear.`,
	Args: cobra.ExactArgs(1),
	RunE: runMachineUnavailable,
}

var (
	unavailableDate  string
	unavailableHours []int
	unavailableClear bool
)

func init() {
	machineCmd.AddCommand(machineListCmd)
	machineCmd.AddCommand(machineImportCmd)
	machineCmd.AddCommand(machineUnavailableCmd)

	machineUnavailableCmd.Flags().StringVar(&unavailableDate, "date", "", "UTC date (YYYY-MM-DD)")
	machineUnavailableCmd.Flags().IntSliceVar(&unavailableHours, "hours", nil, "Hours to block (0-23)")
	machineUnavailableCmd.Flags().BoolVar(&unavailableClear, "clear", false, "Clear all blocked hours on the date")
	machineUnavailableCmd.MarkFlagRequired("date")
}

// machineCatalog is the yaml import format.
type machineCatalog struct {
	Machines []struct {
		Name       string   `yaml:"name"`
		WorkCenter string   `yaml:"work_center"`
		Department string   `yaml:"department"`
		Shifts     []string `yaml:"shifts"`
		Status     string   `yaml:"status"`
	} `yaml:"machines"`
}

// resolveMachine turns a machine name or uuid into an id, via the daemon.
func resolveMachine(ctx context.Context, client *daemon.Client, nameOrID string) (string, error) {
	if _, err := uuid.Parse(nameOrID); err == nil {
		return nameOrID, nil
	}

	machines, err := client.ListMachines(ctx)
	if err != nil {
		return "", err
	}
	for _, raw := range machines {
		machine, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if name, _ := machine["name"].(string); name == nameOrID {
			id, _ := machine["id"].(string)
			return id, nil
		}
	}
	return "", fmt.Errorf("machine %q not found", nameOrID)
}

func runMachineList(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	machines, err := client.ListMachines(ctx)
	if err != nil {
		return err
	}

	if len(machines) == 0 {
		fmt.Println("(no machines - run 'planfab machine import')")
		return nil
	}

	fmt.Printf("%-36s  %-12s  %-12s  %-10s  %s\n", "ID", "NAME", "STATUS", "SHIFTS", "WORK CENTER")
	for _, raw := range machines {
		machine, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var shifts []string
		if rawShifts, ok := machine["shifts"].([]interface{}); ok {
			for _, s := range rawShifts {
				if code, ok := s.(string); ok {
					shifts = append(shifts, code)
				}
			}
		}
		fmt.Printf("%-36v  %-12v  %-12v  %-10s  %v\n",
			machine["id"], machine["name"], machine["status"],
			strings.Join(shifts, ","), machine["work_center"])
	}
	return nil
}

func runMachineImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog machineCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if len(catalog.Machines) == 0 {
		return fmt.Errorf("catalog contains no machines")
	}

	client, err := newDaemonClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	imported := 0
	for _, m := range catalog.Machines {
		shifts := make([]interface{}, 0, len(m.Shifts))
		for _, s := range m.Shifts {
			shifts = append(shifts, s)
		}

		params := map[string]interface{}{
			"name":        m.Name,
			"work_center": m.WorkCenter,
			"department":  m.Department,
			"shifts":      shifts,
		}
		if m.Status != "" {
			params["status"] = m.Status
		}

		if _, err := client.Call(ctx, "machine.create", params); err != nil {
			fmt.Printf("✗ %s: %v\n", m.Name, err)
			continue
		}
		fmt.Printf("✓ %s\n", m.Name)
		imported++
	}

	fmt.Printf("\nImported %d/%d machines\n", imported, len(catalog.Machines))
	return nil
}

func runMachineUnavailable(cmd *cobra.Command, args []string) error {
	if !unavailableClear && len(unavailableHours) == 0 {
		return fmt.Errorf("either --hours or --clear is required")
	}

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

	params := map[string]interface{}{
		"machine_id": machineID,
		"date":       unavailableDate,
	}
	if unavailableClear {
		params["clear"] = true
	} else {
		hours := make([]interface{}, 0, len(unavailableHours))
		for _, h := range unavailableHours {
			hours = append(hours, h)
		}
		params["hours"] = hours
	}

	if _, err := client.Call(ctx, "machine.unavailable", params); err != nil {
		return err
	}

	if unavailableClear {
		fmt.Printf("✓ Cleared blocked hours on %s for %s\n", args[0], unavailableDate)
	} else {
		fmt.Printf("✓ Blocked %d hour(s) on %s for %s\n", len(unavailableHours), args[0], unavailableDate)
	}
	return nil
}
