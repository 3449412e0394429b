package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/api"
	"github.com/jmcleod/storefront/transport"
)

var (
	loginUsername     string
	loginPassword     string
	loginAccessToken  string
	loginRefreshToken string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session's token pair",
	Long: `Exchange a username and password for an access/refresh token pair and
persist it in the credential store. An existing pair can be imported with
--access-token and --refresh-token instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		access, refresh := loginAccessToken, loginRefreshToken
		if access == "" && refresh == "" {
			if loginUsername == "" {
				return errors.New("--username is required")
			}
			password := loginPassword
			if password == "" {
				password = os.Getenv("STOREFRONT_PASSWORD")
			}
			if password == "" {
				if password, err = readPassword(cmd); err != nil {
					return err
				}
			}
			pair, err := exchangePassword(cmd, e.transport, loginUsername, password)
			if err != nil {
				return err
			}
			access, refresh = pair.AccessToken, pair.RefreshToken
		}

		if err := e.client.Login(access, refresh); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
		return nil
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func exchangePassword(cmd *cobra.Command, tr transport.Transport, username, password string) (api.TokenPair, error) {
	body, err := json.Marshal(api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return api.TokenPair{}, err
	}
	resp, err := tr.Send(cmd.Context(), &transport.Request{
		Method:  http.MethodPost,
		Path:    "/auth/login",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return api.TokenPair{}, err
	}
	switch {
	case resp.Status == http.StatusUnauthorized:
		return api.TokenPair{}, errors.New("login failed: invalid username or password")
	case resp.Status == http.StatusTooManyRequests:
		return api.TokenPair{}, fmt.Errorf("login failed: too many attempts, retry after %ss", resp.Header.Get("Retry-After"))
	case !resp.OK():
		return api.TokenPair{}, fmt.Errorf("login failed: status %d", resp.Status)
	}
	var pair api.TokenPair
	if err := json.Unmarshal(resp.Body, &pair); err != nil {
		return api.TokenPair{}, fmt.Errorf("decoding login response: %w", err)
	}
	return pair, nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Account username")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (default: $STOREFRONT_PASSWORD or prompt)")
	loginCmd.Flags().StringVar(&loginAccessToken, "access-token", "", "Import an existing access token")
	loginCmd.Flags().StringVar(&loginRefreshToken, "refresh-token", "", "Import an existing refresh token")
	loginCmd.MarkFlagsRequiredTogether("access-token", "refresh-token")
}
