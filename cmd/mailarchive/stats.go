package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailarchive/internal/store"
)

func newStatsCmd() *cobra.Command {
	var dbFile string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show email archive statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(dbFile)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rule := strings.Repeat("=", 60)
			fmt.Println()
			fmt.Println(rule)
			fmt.Println("EMAIL ARCHIVE STATISTICS")
			fmt.Println(rule)
			fmt.Printf("Total emails: %d\n", stats.TotalEmails)
			fmt.Printf("Oldest email: %s\n", stats.OldestEmail)
			fmt.Printf("Newest email: %s\n", stats.NewestEmail)
			fmt.Printf("Emails with domains found: %d\n", stats.EmailsWithDomains)
			fmt.Println("\nTop 10 Senders:")
			for _, s := range stats.TopSenders {
				fmt.Printf("  %s: %d emails\n", s.Sender, s.Count)
			}
			fmt.Println(rule)
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&dbFile, "db", "email_archive.db", "Database file path")
	return cmd
}
