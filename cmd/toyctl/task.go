package main

import (
	"context"
	"fmt"
	"os"

	"github.com/defvar/toy/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit and inspect tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		tasks, err := c.ListTasks(context.Background())
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.TaskID, t.Status.State, t.Status.Worker)
		}
		return nil
	},
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit FILE",
	Short: "Submit a graph from a YAML file as a new task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read graph file %s: %w", args[0], err)
		}
		var g types.Graph
		if err := yaml.Unmarshal(data, &g); err != nil {
			return fmt.Errorf("parse graph file %s: %w", args[0], err)
		}
		c := clientFromFlags(cmd)
		taskID, err := c.SubmitTask(context.Background(), g)
		if err != nil {
			return fmt.Errorf("submit task: %w", err)
		}
		fmt.Println(taskID.String())
		return nil
	},
}

var taskLogCmd = &cobra.Command{
	Use:   "log TASK_ID",
	Short: "Print a task's event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := types.ParseTaskID(args[0])
		if err != nil {
			return fmt.Errorf("parse task id %s: %w", args[0], err)
		}
		c := clientFromFlags(cmd)
		events, err := c.TaskLog(context.Background(), taskID)
		if err != nil {
			return fmt.Errorf("fetch task log: %w", err)
		}
		for _, e := range events {
			fmt.Println(e)
		}
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskListCmd, taskSubmitCmd, taskLogCmd)
}
