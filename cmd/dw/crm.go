package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/crm"
)

func newCRMCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crm",
		Short: "Salesforce helper commands",
	}

	cmd.AddCommand(newCRMColdCmd())
	cmd.AddCommand(newCRMAssertionCmd())
	return cmd
}

func newCRMColdCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "cold",
		Short: "List open opportunities that have gone cold",
		Long:  "Queries open opportunities and flags those without recent activity or modification.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCRMCold(cmd, configPath, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func runCRMCold(cmd *cobra.Command, configPath string, asJSON bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Salesforce.Configured() {
		return fmt.Errorf("salesforce is not configured (client_id, username and jwt_key_path are required)")
	}
	client, err := crm.New(crm.ClientOpts{Config: cfg.Salesforce})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	records, err := client.FetchActiveRecords(ctx)
	if err != nil {
		return err
	}
	cold := crm.DetectCold(records, time.Now(), cfg.Salesforce.ColdDays, cfg.Salesforce.StalledDays)

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if cold == nil {
			cold = []crm.ColdDeal{}
		}
		return enc.Encode(cold)
	}
	printColdDeals(out, cold, len(records))
	return nil
}

func printColdDeals(out io.Writer, cold []crm.ColdDeal, total int) {
	if len(cold) == 0 {
		fmt.Fprintf(out, "No cold deals among %d open opportunities\n", total)
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTAGE\tIDLE DAYS\tREASON")
	for _, d := range cold {
		idle := "never"
		if d.DaysSinceActivity >= 0 {
			idle = fmt.Sprintf("%d", d.DaysSinceActivity)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.StageName, idle, d.Reason)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d of %d open opportunities are cold\n", len(cold), total)
}

func newCRMAssertionCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "assertion",
		Short: "Print a signed JWT bearer assertion for the configured user",
		Long:  "Signs the assertion used to obtain a Salesforce access token, for debugging connected app setup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCRMAssertion(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runCRMAssertion(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return writeAssertion(cmd.OutOrStdout(), cfg.Salesforce, time.Now())
}

func writeAssertion(out io.Writer, sf config.SalesforceConfig, now time.Time) error {
	if sf.JWTKeyPath == "" || sf.ClientID == "" || sf.Username == "" {
		return fmt.Errorf("salesforce client_id, username and jwt_key_path are required")
	}
	key, err := crm.LoadPrivateKey(sf.JWTKeyPath)
	if err != nil {
		return err
	}
	signed, err := crm.Assertion(key, sf.ClientID, sf.Username, sf.LoginURL, now)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, signed)
	return nil
}
