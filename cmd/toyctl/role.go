package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Inspect and delete RBAC roles",
}

var roleGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print one role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		role, err := c.GetRole(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get role %s: %w", args[0], err)
		}
		fmt.Printf("name: %s\nrules: %+v\n", role.Name, role.Rules)
		return nil
	},
}

var roleDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		if err := c.DeleteRole(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete role %s: %w", args[0], err)
		}
		fmt.Printf("role %s deleted\n", args[0])
		return nil
	},
}

func init() {
	roleCmd.AddCommand(roleGetCmd, roleDeleteCmd)
}
