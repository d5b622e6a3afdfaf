package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailarchive/internal/credential"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the IMAP password stored in the system keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the IMAP password in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("IMAP password: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			pass := strings.TrimRight(line, "\r\n")
			if pass == "" {
				return fmt.Errorf("password must not be empty")
			}

			if err := credential.Set(credential.KeyEmailPass, pass); err != nil {
				return err
			}
			fmt.Println("Password stored.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the IMAP password from the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credential.Delete(credential.KeyEmailPass); err != nil {
				return err
			}
			fmt.Println("Password removed.")
			return nil
		},
	})

	return cmd
}
