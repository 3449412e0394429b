package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/session"
)

var (
	requestData    string
	requestHeaders []string
	requestVerbose bool
)

var requestCmd = &cobra.Command{
	Use:   "request METHOD PATH",
	Short: "Send an authenticated request and print the response body",
	Long: `Send METHOD PATH to the storefront API with the session's access token.
An expired token is refreshed once and the request retried; if the refresh
credential is rejected the stored session is purged and you must log in again.`,
	Example: `  storefront request GET /me
  storefront request POST /orders --data '{"productId":"p-100"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		headers, err := parseHeaders(requestHeaders)
		if err != nil {
			return err
		}
		var body []byte
		if requestData != "" {
			if !json.Valid([]byte(requestData)) {
				return errors.New("--data must be valid JSON")
			}
			body = []byte(requestData)
			if _, ok := headers["Content-Type"]; !ok {
				headers["Content-Type"] = "application/json"
			}
		}

		resp, err := e.client.Do(cmd.Context(), strings.ToUpper(args[0]), args[1], headers, body)
		if err != nil {
			var expired *session.AuthExpiredError
			if errors.As(err, &expired) && (expired.Terminal() || expired.Cause == nil) {
				return fmt.Errorf("%w; run `storefront login`", err)
			}
			return err
		}

		out := cmd.OutOrStdout()
		if requestVerbose {
			fmt.Fprintf(out, "HTTP %d\n", resp.Status)
		}
		var pretty bytes.Buffer
		if json.Indent(&pretty, resp.Body, "", "  ") == nil {
			pretty.WriteByte('\n')
			out.Write(pretty.Bytes())
		} else if len(resp.Body) > 0 {
			out.Write(resp.Body)
		}
		if !resp.OK() {
			return &session.StatusError{Status: resp.Status, Body: resp.Body}
		}
		return nil
	},
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw)+1)
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want Name: Value", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "JSON request body")
	requestCmd.Flags().StringArrayVarP(&requestHeaders, "header", "H", nil, "Extra header, Name: Value (repeatable)")
	requestCmd.Flags().BoolVarP(&requestVerbose, "verbose", "v", false, "Print the response status")
}
