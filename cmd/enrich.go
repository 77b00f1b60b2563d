package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/config"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/scheduler"
	"github.com/sells-group/enrichment-cli/internal/service"
)

var (
	enrichInput     string
	enrichEmails    bool
	enrichWebsites  bool
	enrichPhones    bool
	enrichDryRun    bool
	enrichReset     bool
	enrichBatchSize int
	enrichDelay     time.Duration
	enrichOutputDir string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a company list with websites, emails and phone numbers",
	Long: `Runs the website, email and phone waterfalls over every company in the input,
resuming from the progress store. The first interrupt stops after the company in
flight and still exports; a second interrupt aborts immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrichInput != "" {
			cfg.Input.Path = enrichInput
			cfg.Input.NotionDatabase = ""
		}
		if enrichOutputDir != "" {
			cfg.Output.Dir = enrichOutputDir
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		env, err := initEnv(ctx, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		token := scheduler.NewToken()
		sigs := make(chan os.Signal, 2)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		done := make(chan struct{})
		defer close(done)
		go handleSignals(sigs, done, token, cancel)

		report, runErr := env.Service.Run(ctx, service.RunOptions{
			Fields:     selectedFields(enrichEmails, enrichWebsites, enrichPhones),
			DryRun:     enrichDryRun,
			Reset:      enrichReset,
			BatchSize:  enrichBatchSize,
			BatchDelay: enrichDelay,
		}, token)
		if report != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return eris.Wrap(err, "write report")
			}
		}
		return runErr
	},
}

// handleSignals turns the first signal into a graceful stop and the second
// into an abort. It returns when done is closed or after the abort.
func handleSignals(sigs <-chan os.Signal, done <-chan struct{}, token *scheduler.Token, abort context.CancelFunc) {
	for n := 0; ; n++ {
		select {
		case <-done:
			return
		case sig := <-sigs:
			if n == 0 {
				zap.L().Warn("stopping after the current company; interrupt again to abort", zap.String("signal", sig.String()))
				token.Cancel()
				continue
			}
			zap.L().Warn("aborting", zap.String("signal", sig.String()))
			abort()
			return
		}
	}
}

// selectedFields maps the --*-only flags to a field subset. None set means
// all fields.
func selectedFields(emails, websites, phones bool) []model.Field {
	var fields []model.Field
	if websites {
		fields = append(fields, model.FieldWebsite)
	}
	if emails {
		fields = append(fields, model.FieldEmail)
	}
	if phones {
		fields = append(fields, model.FieldPhone)
	}
	return fields
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichInput, "input", "", "input CSV/XLSX file or ftp:// URL (default from config)")
	f.BoolVar(&enrichEmails, "emails-only", false, "only resolve email addresses")
	f.BoolVar(&enrichWebsites, "websites-only", false, "only resolve websites")
	f.BoolVar(&enrichPhones, "phones-only", false, "only resolve phone numbers")
	f.BoolVar(&enrichDryRun, "dry-run", false, "report planned work without calling any provider")
	f.BoolVar(&enrichReset, "reset", false, "archive stored progress and start over")
	f.IntVar(&enrichBatchSize, "batch-size", 0, "companies per batch (default from config)")
	f.DurationVar(&enrichDelay, "delay", -1, "pause between batches (default from config)")
	f.StringVar(&enrichOutputDir, "output-dir", "", "directory for exported files (default from config)")
	enrichCmd.MarkFlagsMutuallyExclusive("emails-only", "websites-only", "phones-only")
	rootCmd.AddCommand(enrichCmd)
}
