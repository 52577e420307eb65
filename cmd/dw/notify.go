package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/youneslaaroussi/dealwhisperer/internal/notifier"
)

func newNotifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run one stale-deal notification pass",
		Long:  "Fetches stalled deals from Salesforce (or the cached listing) and messages every mapped stakeholder once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runNotify(cmd *cobra.Command, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.Notifier.RunTimeoutSec)*time.Second)
	defer cancel()

	sum, err := a.notifier.Run(ctx)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	printSummary(cmd.OutOrStdout(), sum)
	return nil
}

func printSummary(out io.Writer, sum notifier.RunSummary) {
	source := "salesforce"
	if sum.FromCache {
		source = "cache"
	}
	fmt.Fprintf(out, "Stakeholders: %d\n", sum.Stakeholders)
	fmt.Fprintf(out, "Stale deals:  %d (from %s)\n", sum.Deals, source)
	fmt.Fprintf(out, "Sent:         %d\n", sum.Sent)
	fmt.Fprintf(out, "Failed:       %d\n", sum.Failed)
}
