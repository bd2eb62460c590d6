package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/web"
)

func newKeysCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate COOKIE_HASH_KEY / COOKIE_BLOCK_KEY values, and optionally a DASHBOARD_PASS_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := make([]byte, 32)
			block := make([]byte, 32)
			if _, err := rand.Read(hash); err != nil {
				return err
			}
			if _, err := rand.Read(block); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "export COOKIE_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(hash))
			fmt.Fprintf(os.Stdout, "export COOKIE_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(block))

			if password != "" {
				ph, err := web.HashPassword(password)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "export DASHBOARD_PASS_HASH='%s'\n", ph)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "also print the bcrypt hash for this dashboard password")
	return cmd
}
