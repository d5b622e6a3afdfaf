package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/nhle/mailarchive/internal/model"
	"github.com/nhle/mailarchive/internal/store"
)

func newQueryCmd() *cobra.Command {
	var (
		dbFile        string
		filter        store.Filter
		showBody      bool
		maxBodyLength int
		exportPath    string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the email archive with filters",
		Long: "Filters are substring matches; date bounds compare lexically " +
			"against the literal Date header values. Results are ordered by " +
			"date descending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Empty() {
				fmt.Println("No filters specified. Use \"mailarchive stats\" for statistics,")
				fmt.Println("or provide at least one filter (--sender, --subject, ...).")
				return nil
			}

			st, err := store.NewSQLiteStore(dbFile)
			if err != nil {
				return err
			}
			defer st.Close()

			emails, err := st.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if len(emails) == 0 {
				fmt.Println("No emails found matching the criteria.")
				return nil
			}

			fmt.Printf("\nFound %d email(s):\n\n", len(emails))
			fmt.Println(strings.Repeat("=", 80))
			for i, e := range emails {
				fmt.Printf("\n[%d/%d]\n", i+1, len(emails))
				fmt.Println(strings.Repeat("-", 80))
				printEmail(e, showBody, maxBodyLength)
			}
			fmt.Println(strings.Repeat("=", 80))
			fmt.Printf("\nTotal: %d email(s)\n", len(emails))

			if exportPath != "" {
				if err := exportJSON(emails, exportPath); err != nil {
					return err
				}
				fmt.Printf("\nExported %d emails to %s\n", len(emails), exportPath)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dbFile, "db", "email_archive.db", "Database file path")
	flags.StringVar(&filter.Sender, "sender", "", "Filter by sender (partial match)")
	flags.StringVar(&filter.Recipient, "recipient", "", "Filter by recipient (partial match)")
	flags.StringVar(&filter.Subject, "subject", "", "Filter by subject (partial match)")
	flags.StringVar(&filter.DateFrom, "date-from", "", "Filter emails from this date (YYYY-MM-DD)")
	flags.StringVar(&filter.DateTo, "date-to", "", "Filter emails to this date (YYYY-MM-DD)")
	flags.StringVar(&filter.Domain, "domain", "", "Filter by domain found in email body")
	flags.StringVar(&filter.BodySearch, "search-body", "", "Search for text in email body")
	flags.IntVar(&filter.Limit, "limit", 50, "Maximum number of results")
	flags.IntVar(&filter.Offset, "offset", 0, "Offset for pagination")
	flags.BoolVar(&showBody, "show-body", false, "Show email body in results")
	flags.IntVar(&maxBodyLength, "max-body-length", 200, "Max body length when showing body")
	flags.StringVar(&exportPath, "export", "", "Export results to a JSON file")

	return cmd
}

func printEmail(e model.Email, showBody bool, maxBodyLength int) {
	fmt.Printf("ID: %d\n", e.ID)
	fmt.Printf("Message-ID: %s\n", e.MessageID)
	fmt.Printf("From: %s\n", e.Sender)
	fmt.Printf("To: %s\n", e.Recipient)
	fmt.Printf("Date: %s\n", e.Date)
	fmt.Printf("Subject: %s\n", e.Subject)
	if e.DomainsFound != nil {
		fmt.Printf("Domains: %s\n", *e.DomainsFound)
	}
	if showBody && e.Body != "" {
		fmt.Printf("\nBody:\n%s\n", truncateBody(e.Body, maxBodyLength))
	}
	fmt.Println()
}

// truncateBody shortens body to at most max bytes, backing up to a rune
// boundary so a multi-byte character is never cut in half. max <= 0
// disables truncation.
func truncateBody(body string, max int) string {
	if max <= 0 || len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}

func exportJSON(emails []model.Email, path string) error {
	data, err := json.MarshalIndent(emails, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing export %s: %w", path, err)
	}
	return nil
}
