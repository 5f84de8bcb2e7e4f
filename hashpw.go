package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/waypoint/internal/token"
)

// newHashPasswordCmd generates the argon2id hash that goes in
// auth.password_hash (or WAYPOINT_PASSWORD_HASH). The password comes from
// the first argument or, if absent, one line on stdin — piping it in
// keeps it out of shell history.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Generate an argon2id password hash for the config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string

			if len(args) == 1 {
				password = args[0]
			} else {
				if isatty.IsTerminal(os.Stdin.Fd()) {
					fmt.Fprint(os.Stderr, "Password: ")
				}

				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password: %w", err)
				}

				password = strings.TrimRight(line, "\r\n")
			}

			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			hash, err := token.Fingerprint(password)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)

			return nil
		},
	}
}
