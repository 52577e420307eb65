package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the correlation tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var (
		configPath string
		mappings   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Map stakeholder roles to Slack user ids",
		Long: "Upserts role to Slack user id mappings, for example:\n" +
			"  dw db seed --map PM=U012AB3CD --map SalesRep=U045EF6GH",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath, mappings)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringToStringVarP(&mappings, "map", "m", nil, "role=SlackUserID pair (repeatable)")
	return cmd
}

func runDBSeed(cmd *cobra.Command, configPath string, mappings map[string]string) error {
	out := cmd.OutOrStdout()
	if len(mappings) == 0 {
		return fmt.Errorf("at least one --map role=SlackUserID is required")
	}
	for role, user := range mappings {
		if strings.TrimSpace(role) == "" || strings.TrimSpace(user) == "" {
			return fmt.Errorf("invalid mapping %q=%q", role, user)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	if err := db.SeedMappings(gormDB, mappings); err != nil {
		return err
	}

	roles := make([]string, 0, len(mappings))
	for role := range mappings {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Fprintf(out, "  %-12s -> %s\n", role, mappings[role])
	}
	fmt.Fprintf(out, "Seeded %d stakeholder mappings\n", len(mappings))
	return nil
}
