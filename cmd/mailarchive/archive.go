package main

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nhle/mailarchive/internal/archive"
	"github.com/nhle/mailarchive/internal/credential"
	"github.com/nhle/mailarchive/internal/mailbox"
	"github.com/nhle/mailarchive/internal/store"
)

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Fetch and archive the next batch of unseen messages",
		Long: "Lists the configured mailbox, computes which messages are not yet " +
			"archived, and processes up to batch_size of them. Re-run the command " +
			"to continue with the next batch; interrupted runs resume safely.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			pass := cfg.EmailPass
			if pass == "" {
				pass, err = credential.Get(credential.KeyEmailPass)
				if err != nil {
					return fmt.Errorf(
						"email_pass is empty in the config and not in the keyring "+
							"(run \"mailarchive auth set\"): %w", err)
				}
			}

			st, err := store.NewSQLiteStore(cfg.DBFile)
			if err != nil {
				return err
			}
			defer st.Close()

			sess, err := mailbox.Open(mailbox.Options{
				Server:         cfg.IMAPServer,
				User:           cfg.EmailUser,
				Pass:           pass,
				Mailbox:        cfg.Mailbox,
				ReconnectEvery: cfg.ReconnectEvery,
			}, logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			arch := archive.New(sess, st, archive.Config{
				BatchSize: cfg.BatchSize,
				Throttle:  cfg.Throttle(),
			}, logger)

			var bar *pterm.ProgressbarPrinter
			arch.OnProgress = func(processed, total int) {
				if bar == nil && total > 0 {
					bar, _ = pterm.DefaultProgressbar.
						WithTotal(total).
						WithTitle("Archiving").
						Start()
				}
				if bar != nil {
					bar.Increment()
				}
			}

			counts, runErr := arch.Run(cmd.Context())
			if bar != nil {
				_, _ = bar.Stop()
			}

			pterm.Info.Printf("Total emails on server: %d\n", counts.Discovered)
			pterm.Info.Printf("Remaining to archive at run start: %d\n", counts.Pending)
			pterm.Info.Printf("Processed: %d (archived %d, skipped %d)\n",
				counts.Processed, counts.Archived, counts.Skipped)

			if runErr != nil {
				pterm.Error.Printf("Run aborted: %v\n", runErr)
				pterm.Info.Println("Already-archived progress is intact; re-run to resume.")
				return runErr
			}

			pterm.Success.Printf("Batch complete — archived %d new emails.\n", counts.Archived)
			if counts.Pending > counts.Processed {
				pterm.Info.Println("Re-run to process the next batch.")
			}
			return nil
		},
	}
}
