package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/freight-session/authclient"
	"github.com/jrsteele09/freight-session/internal/config"
	"github.com/jrsteele09/freight-session/kvstore"
	"github.com/jrsteele09/freight-session/kvstore/filestore"
	"github.com/jrsteele09/freight-session/kvstore/pgstore"
	kvstorefake "github.com/jrsteele09/freight-session/kvstore/repofake"
	"github.com/jrsteele09/freight-session/kvstore/sqlitestore"
	"github.com/jrsteele09/freight-session/oidcbackend"
	"github.com/jrsteele09/freight-session/session"
	"github.com/rs/zerolog"
)

// openStore picks the durable store. The returned func releases it.
func openStore(ctx context.Context, c config.Config, logger zerolog.Logger, driver, dsn string) (kvstore.Store, func(), error) {
	if driver == "" {
		driver = c.GetStorageDriver()
	}
	if dsn == "" {
		dsn = defaultDSN(c, driver)
	}

	switch driver {
	case "memory":
		return kvstorefake.NewFakeStore(), func() {}, nil
	case "file":
		s, err := filestore.New(dsn, filestore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "sqlite":
		s, err := sqlitestore.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		if dsn == "" {
			return nil, nil, fmt.Errorf("[sessionctl openStore] postgres needs -dsn or STORAGE_DSN")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("[sessionctl openStore] connect: %w", err)
		}
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("[sessionctl openStore] unknown store %q", driver)
	}
}

func defaultDSN(c config.Config, driver string) string {
	if driver == c.GetStorageDriver() {
		return c.GetStorageDSN()
	}
	switch driver {
	case "file":
		return filepath.Join(c.GetDataFolder(), "session.json")
	case "sqlite":
		return filepath.Join(c.GetDataFolder(), "session.db")
	default:
		return ""
	}
}

// newBackend talks to an OpenID provider when one is configured and to the gateway otherwise
func newBackend(ctx context.Context, c config.Config, logger zerolog.Logger) (session.AuthBackend, error) {
	if issuer := c.GetOIDCIssuer(); issuer != "" {
		b, err := oidcbackend.Discover(ctx, issuer, c.GetOIDCClientID(), c.GetOIDCClientSecret(), oidcbackend.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return authclient.New(c.GetAuthBaseURL(), authclient.WithLogger(logger)), nil
}
