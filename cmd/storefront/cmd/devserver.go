package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/api"
	"github.com/jmcleod/storefront/internal/alert"
)

var (
	port           int
	tlsCert        string
	tlsKey         string
	accessTTL      time.Duration
	refreshTTL     time.Duration
	rotateRefresh  bool
	trustedProxies []string
)

const janitorInterval = 5 * time.Minute

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run a local storefront API issuing short-lived bearer tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		proxies, err := parsePrefixes(trustedProxies)
		if err != nil {
			return err
		}

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithAccessTokenTTL(accessTTL),
			api.WithRefreshTokenTTL(refreshTTL),
			api.WithRefreshRotation(rotateRefresh),
			api.WithTrustedProxies(proxies),
			api.WithDocsPrefix("/api/v1"),
		}
		if alertWebhook != "" {
			wh := alert.NewWebhook(alertWebhook, os.Getenv("STOREFRONT_ALERT_WEBHOOK_HEADER"), logger)
			defer wh.Close()
			opts = append(opts, api.WithAlertFunc(func(evt api.AlertEvent) {
				wh.Enqueue(alert.Event{
					Source:    "api",
					Type:      string(evt.Type),
					Message:   evt.Message,
					Count:     evt.Count,
					Threshold: evt.Threshold,
					Timestamp: evt.Timestamp,
				})
			}))
		}
		a := api.New(opts...)

		janitorCtx, stopJanitor := context.WithCancel(cmd.Context())
		defer stopJanitor()
		go a.RunJanitor(janitorCtx, janitorInterval)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
		}
		fmt.Fprintf(out, "Serving %s://localhost:%d/api/v1 (access TTL %s, rotation %t)...\n", scheme, port, accessTTL, rotateRefresh)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("invalid --trusted-proxy %q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

func init() {
	rootCmd.AddCommand(devServerCmd)
	devServerCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	devServerCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	devServerCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	devServerCmd.Flags().DurationVar(&accessTTL, "access-ttl", 15*time.Minute, "Access token lifetime")
	devServerCmd.Flags().DurationVar(&refreshTTL, "refresh-ttl", 30*24*time.Hour, "Refresh token lifetime")
	devServerCmd.Flags().BoolVar(&rotateRefresh, "rotate-refresh", false, "Issue a new refresh token on every refresh")
	devServerCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxy", nil, "CIDR or address whose forwarding headers are trusted (repeatable)")
}
