package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/middleware/jwtware"
	"github.com/goliatone/go-holocrypt/sessionstore"
	"github.com/goliatone/go-holocrypt/sessionstore/local"
	"github.com/goliatone/go-holocrypt/sessionstore/supabase"
)

// storeBundle is everything the server needs from the configured driver
type storeBundle struct {
	Factory   holocrypt.StoreFactory
	Validator jwtware.TokenValidator
	Local     *local.Backend
	closers   []func() error
}

func (b *storeBundle) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildTokenStorage(ctx context.Context, cfg holocrypt.StoreConfig, logger holocrypt.Logger) (sessionstore.TokenStorage, func() error, error) {
	if cfg.Redis.Addr == "" {
		return sessionstore.NewMemoryStorage(), func() error { return nil }, nil
	}

	storage := sessionstore.NewRedisStorageFromConfig(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := storage.Ping(pingCtx); err != nil {
		_ = storage.Close()
		return nil, nil, fmt.Errorf("redis token storage %s: %w", cfg.Redis.Addr, err)
	}

	logger.Info("using redis token storage", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	return storage, storage.Close, nil
}

func buildStore(ctx context.Context, cfg *holocrypt.BaseConfig, logger holocrypt.Logger) (*storeBundle, error) {
	store := cfg.GetStore()
	bundle := &storeBundle{}

	storage, closeStorage, err := buildTokenStorage(ctx, store, logger)
	if err != nil {
		return nil, err
	}
	bundle.closers = append(bundle.closers, closeStorage)

	switch store.Driver {
	case holocrypt.DriverSupabase:
		verifier, err := sessionstore.NewVerifier(sessionstore.VerifierConfig{
			Secret:  store.JWTSecret,
			JWKSURL: store.JWKSURL,
			OnRefreshError: func(err error) {
				logger.Warn("jwks refresh failed", "error", err)
			},
		})
		if err != nil {
			bundle.Close()
			return nil, err
		}

		factory := supabase.NewFactory(supabase.Config{
			URL:        store.URL,
			Key:        store.Key,
			HTTPClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
			Storage:    storage,
			Verifier:   verifier,
			Logger:     logger,
		})
		bundle.Factory = factory
		if verifier.Verifies() {
			bundle.Validator = verifier
		}

	case holocrypt.DriverLocal:
		backend, err := local.Open(ctx, local.Config{
			DSN:         store.DSN,
			JWTSecret:   store.JWTSecret,
			TokenTTL:    store.TokenTTL,
			AutoConfirm: store.AutoConfirm,
			Logger:      logger,
		})
		if err != nil {
			bundle.Close()
			return nil, err
		}
		bundle.closers = append(bundle.closers, backend.Close)
		bundle.Local = backend
		bundle.Factory = backend.Factory(sessionstore.ManagerConfig{
			Storage: storage,
			Logger:  logger,
		})

		verifier, err := backend.Verifier()
		if err != nil {
			bundle.Close()
			return nil, err
		}
		bundle.Validator = verifier

	default:
		bundle.Close()
		return nil, fmt.Errorf("unknown session store driver %q", store.Driver)
	}

	return bundle, nil
}
