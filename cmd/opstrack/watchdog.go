package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

func newWatchdogCmd() *cobra.Command {
	var apiURL, restartCmd string
	var timeoutSec int

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Check the API health endpoint and optionally restart the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatchdog(apiURL, restartCmd, time.Duration(timeoutSec)*time.Second)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "opstrack API URL")
	cmd.Flags().StringVar(&restartCmd, "restart-cmd", "", "command to run if unhealthy")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 5, "health check timeout in seconds")
	return cmd
}

func runWatchdog(apiURL, restartCmd string, timeout time.Duration) error {
	url := strings.TrimRight(apiURL, "/") + "/api/v1/health"
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return handleUnhealthy(restartCmd)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check returned status %d\n", resp.StatusCode)
		return handleUnhealthy(restartCmd)
	}
	return nil
}

func handleUnhealthy(restartCmd string) error {
	if restartCmd == "" {
		return goerr.New("opstrack is unhealthy")
	}

	fmt.Fprintf(os.Stderr, "attempting restart: %s\n", restartCmd)
	cmd := exec.Command("sh", "-c", restartCmd)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return goerr.Wrap(err, "restart command failed", goerr.V("command", restartCmd))
	}
	return nil
}
