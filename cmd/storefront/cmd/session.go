package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/storefront/internal/alert"
	"github.com/jmcleod/storefront/session"
	"github.com/jmcleod/storefront/storage"
	bboltstorage "github.com/jmcleod/storefront/storage/bbolt"
	"github.com/jmcleod/storefront/storage/memory"
	pgstorage "github.com/jmcleod/storefront/storage/postgres"
	redisstorage "github.com/jmcleod/storefront/storage/redis"
	"github.com/jmcleod/storefront/storage/sealed"
	"github.com/jmcleod/storefront/transport"
)

// sealSalt separates the CLI's sealed-store key from other uses of the same
// secret.
const sealSalt = "storefront-cli"

// env holds everything a command needs for one invocation.
type env struct {
	logger    *slog.Logger
	transport *transport.HTTP
	client    *session.Client
	closers   []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// openStore returns the credential store selected by --store, sealed when
// --seal-secret is set.
func openStore(ctx context.Context) (storage.Store, func(), error) {
	var (
		store   storage.Store
		closeFn = func() {}
	)
	switch strings.ToLower(storeKind) {
	case "bbolt":
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := bboltstorage.NewStoreFromFile(filepath.Join(dataDir, profile+".db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential file: %w", err)
		}
		store, closeFn = s, func() { s.Close() }
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		store = redisstorage.NewStore(rdb, redisstorage.DefaultPrefix+":"+profile)
		closeFn = func() { rdb.Close() }
	case "postgres":
		if postgresDSN == "" {
			return nil, nil, errors.New("--postgres-dsn is required for --store=postgres")
		}
		s, err := pgstorage.NewStoreFromDSN(ctx, postgresDSN, profile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		store, closeFn = s, s.Close
	case "memory":
		store = memory.NewStore()
	default:
		return nil, nil, fmt.Errorf("unknown --store %q", storeKind)
	}

	if sealSecret == "" {
		return store, closeFn, nil
	}
	s, err := sealed.New(store, []byte(sealSecret), []byte(sealSalt))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	innerClose := closeFn
	return s, func() { s.Close(); innerClose() }, nil
}

// newEnv wires logger, store, transport and session client from the
// persistent flags.
func newEnv(ctx context.Context) (*env, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	e := &env{logger: logger}

	tr, err := transport.NewHTTP(baseURL,
		transport.WithLogger(logger),
		transport.WithUserAgent("storefront-cli/"+Version),
	)
	if err != nil {
		return nil, err
	}
	e.transport = tr

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeStore)

	opts := []session.Option{session.WithLogger(logger)}
	if alertWebhook != "" {
		wh := alert.NewWebhook(alertWebhook, os.Getenv("STOREFRONT_ALERT_WEBHOOK_HEADER"), logger)
		e.closers = append(e.closers, wh.Close)
		opts = append(opts, session.WithAlertFunc(func(evt session.AlertEvent) {
			wh.Enqueue(alert.Event{
				Source:    "session",
				Type:      string(evt.Type),
				Message:   evt.Message,
				Count:     evt.Count,
				Threshold: evt.Threshold,
				Timestamp: evt.Timestamp,
			})
		}))
	}

	client, err := session.New(store, tr, opts...)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	e.client = client
	return e, nil
}
