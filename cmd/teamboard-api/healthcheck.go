package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"teamboard-api/internal/http/client"
	"teamboard-api/internal/observability/requestid"

	"github.com/spf13/cobra"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running server's readiness endpoint",
	Long:  `Exit non-zero unless GET <url> answers 200. Intended for container HEALTHCHECK directives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := cmd.Flags().GetString("url")
		if err != nil {
			return err
		}
		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return err
		}
		return probe(cmd.Context(), client.New(timeout), url)
	},
}

func init() {
	healthcheckCmd.Flags().String("url", "http://127.0.0.1:3002/ready", "endpoint to probe")
	healthcheckCmd.Flags().Duration("timeout", 3*time.Second, "request timeout")
	rootCmd.AddCommand(healthcheckCmd)
}

func probe(ctx context.Context, c *http.Client, url string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = requestid.SetRequestID(ctx, requestid.NewRequestID())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
	}
	return nil
}
