package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in")

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		token, ok := e.client.CurrentAccessToken()
		if !ok {
			return errNotLoggedIn
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
