// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingTimeoutSeconds int
	pingCount          int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the IR bridge by sending PING_REQUEST",
	Long: `Send PING_REQUEST packets to the IR bridge and wait for PING_RESPONSE.

The bridge answers with its uptime. This is useful for verifying:
  - Serial port or WebSocket connection is established
  - HTTP Basic authentication works (WebSocket)
  - Bridge firmware is processing packets
  - Bidirectional packet flow works

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeoutSeconds, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	driver, connInfo, err := openBridge(ctx)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer driver.Close()

	linkErr := make(chan error, 1)
	go func() { linkErr <- driver.Run(ctx) }()

	timeout := time.Duration(pingTimeoutSeconds) * time.Second
	fmt.Printf("Mistral - Bridge Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeoutSeconds)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		pingCtx, cancelPing := context.WithTimeout(ctx, timeout)
		startTime := time.Now()
		uptime, err := driver.Ping(pingCtx)
		cancelPing()

		switch {
		case err == nil:
			rtt := time.Since(startTime)
			fmt.Printf("PONG from bridge, uptime=%s, rtt=%v\n", formatUptime(uptime), rtt.Round(time.Millisecond))
			successCount++
		case errors.Is(err, context.DeadlineExceeded):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeoutSeconds)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		// The read loop ending means the link is gone
		var closed error
		select {
		case closed = <-linkErr:
		default:
		}
		if closed != nil {
			fmt.Printf("\nLink closed: %v\n", closed)
			failCount += pingCount - i
			break
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		return exitError(1, fmt.Errorf("%d of %d pings failed", failCount, pingCount))
	}
	return nil
}
