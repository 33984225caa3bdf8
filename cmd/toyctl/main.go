package main

import (
	"fmt"
	"os"

	"github.com/defvar/toy/pkg/client"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toyctl",
	Short: "toyctl controls a toy task orchestrator cluster",
}

func init() {
	rootCmd.PersistentFlags().String("api", "http://127.0.0.1:8080", "API server address")

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(supervisorCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(roleCmd)
}

func clientFromFlags(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("api")
	return client.NewClient(addr)
}
