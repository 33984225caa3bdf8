package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Inspect registered supervisors",
}

var supervisorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered supervisors",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		workers, err := c.ListSupervisors(context.Background())
		if err != nil {
			return fmt.Errorf("list supervisors: %w", err)
		}
		for _, w := range workers {
			fmt.Printf("%s\t%s\t%s\n", w.Name, w.Addr, w.Status)
		}
		return nil
	},
}

var supervisorGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print one supervisor's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		w, err := c.GetSupervisor(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get supervisor %s: %w", args[0], err)
		}
		fmt.Printf("name: %s\naddr: %s\nstatus: %s\nlast_heartbeat: %v\n", w.Name, w.Addr, w.Status, w.LastHeartbeat)
		return nil
	},
}

func init() {
	supervisorCmd.AddCommand(supervisorListCmd, supervisorGetCmd)
}
