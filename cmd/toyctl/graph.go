package main

import (
	"context"
	"fmt"
	"os"

	"github.com/defvar/toy/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage stored task graphs",
}

var graphListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored graphs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		graphs, err := c.ListGraphs(context.Background())
		if err != nil {
			return fmt.Errorf("list graphs: %w", err)
		}
		for _, g := range graphs {
			fmt.Printf("%s\t%d nodes\n", g.Name, len(g.Nodes))
		}
		return nil
	},
}

var graphGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print one graph as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		g, err := c.GetGraph(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get graph %s: %w", args[0], err)
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(g)
	},
}

var graphApplyCmd = &cobra.Command{
	Use:   "apply NAME FILE",
	Short: "Create or update a graph from a YAML file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read graph file %s: %w", args[1], err)
		}
		var g types.Graph
		if err := yaml.Unmarshal(data, &g); err != nil {
			return fmt.Errorf("parse graph file %s: %w", args[1], err)
		}
		c := clientFromFlags(cmd)
		if err := c.PutGraph(context.Background(), args[0], g); err != nil {
			return fmt.Errorf("apply graph %s: %w", args[0], err)
		}
		fmt.Printf("graph %s applied\n", args[0])
		return nil
	},
}

var graphDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a stored graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		if err := c.DeleteGraph(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete graph %s: %w", args[0], err)
		}
		fmt.Printf("graph %s deleted\n", args[0])
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphListCmd, graphGetCmd, graphApplyCmd, graphDeleteCmd)
}
