package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/waypoint/internal/audit"
	"github.com/tonimelisma/waypoint/internal/config"
)

// newActivityCmd prints recent operations from the audit ledger.
func newActivityCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent file operations from the audit ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(config.ReadEnvOverrides(), flagConfigPath)
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.Audit.Path); err != nil {
				return fmt.Errorf("no audit ledger at %s (is auditing enabled?)", cfg.Audit.Path)
			}

			ledger, err := audit.Open(cfg.Audit.Path, buildLogger(cfg))
			if err != nil {
				return err
			}
			defer ledger.Close()

			records, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded operations.")
				return nil
			}

			for _, rec := range records {
				status := "ok"
				if !rec.OK {
					status = "FAILED"
				}

				line := fmt.Sprintf("%s  %-8s  %-6s  %s",
					rec.Time.Format("2006-01-02 15:04:05"), rec.Op, status, rec.Path)

				if rec.DstPath != "" {
					line += " -> " + rec.DstPath
				}

				if rec.Detail != "" {
					line += "  (" + rec.Detail + ")"
				}

				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of operations to show")

	return cmd
}
