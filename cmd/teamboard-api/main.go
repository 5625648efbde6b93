package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "teamboard-api",
	Short: "Teamboard API - multi-tenant workspaces, projects and tasks",
	Long:  `Workspace and membership API with role-based access control, invite codes, JWT auth, rate limiting, idempotency, and observability.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
