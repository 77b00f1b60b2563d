package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrichment-cli/internal/config"
	"github.com/sells-group/enrichment-cli/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the stored run state as JSON",
	Long:  "Reads the progress store without taking its lock, so it can be used while a run is active.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeStatus); err != nil {
			return err
		}

		p, err := openPersister(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		snap, err := progress.ReadSnapshot(ctx, p)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return eris.Wrap(err, "write status")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
