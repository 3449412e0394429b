package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var (
	baseURL      string
	storeKind    string
	dataDir      string
	profile      string
	redisAddr    string
	postgresDSN  string
	sealSecret   string
	logLevel     string
	alertWebhook string
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront is an authenticated client for the storefront API",
	Long: `A command line client that keeps a storefront session: it signs in,
attaches the access token to every request and refreshes it transparently
when the backend answers 401.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseURL, "base-url", envOr("STOREFRONT_BASE_URL", "http://localhost:8080/api/v1"), "Storefront API base URL")
	pf.StringVar(&storeKind, "store", envOr("STOREFRONT_STORE", "bbolt"), "Credential store: bbolt, redis, postgres or memory")
	pf.StringVar(&dataDir, "data-dir", envOr("STOREFRONT_DATA_DIR", defaultDataDir()), "Directory for the bbolt credential file")
	pf.StringVar(&profile, "profile", envOr("STOREFRONT_PROFILE", "default"), "Session profile; namespaces stored credentials")
	pf.StringVar(&redisAddr, "redis-addr", envOr("STOREFRONT_REDIS_ADDR", "localhost:6379"), "Redis address for --store=redis")
	pf.StringVar(&postgresDSN, "postgres-dsn", os.Getenv("STOREFRONT_POSTGRES_DSN"), "Postgres DSN for --store=postgres")
	pf.StringVar(&sealSecret, "seal-secret", os.Getenv("STOREFRONT_SEAL_SECRET"), "Encrypt stored credentials with a key derived from this secret")
	pf.StringVar(&logLevel, "log-level", envOr("STOREFRONT_LOG_LEVEL", "warn"), "Log level: debug, info, warn or error")
	pf.StringVar(&alertWebhook, "alert-webhook", os.Getenv("STOREFRONT_ALERT_WEBHOOK"), "URL receiving refresh failure alerts")
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/storefront"
	}
	return "./data"
}
