package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushbridge/internal/api"
	"pushbridge/internal/config"
	"pushbridge/internal/control"
	"pushbridge/internal/creds"
	"pushbridge/internal/events"
	"pushbridge/internal/notify"
	"pushbridge/internal/otp"
	"pushbridge/internal/stream"
	"pushbridge/pkg/logger"

	"go.uber.org/zap"
)

// Bridge bundles the long-lived pieces of the daemon.
type Bridge struct {
	store    *creds.Store
	manager  *stream.Manager
	platform *notify.DBusPlatform
	srv      *http.Server
}

// messaging resolves the current credential for the classifier's
// fire-and-forget thread refreshes.
type messaging struct {
	store *creds.Store
	base  string
}

func (m *messaging) RequestThreadList(ctx context.Context, deviceIden string) error {
	cred, err := m.store.Load()
	if err != nil {
		return err
	}
	if cred == nil {
		return errors.New("not logged in")
	}
	return api.NewClient(m.base, cred.APIKey).RequestThreadList(ctx, cred.UserID, deviceIden)
}

// tickleLog is where tickle signals land. The dashboard pulls fresh data
// through the control API, so the daemon only records that something
// changed server-side.
type tickleLog struct{}

func (tickleLog) PushesChanged()  { logger.Debug("push list changed server-side") }
func (tickleLog) DevicesChanged() { logger.Debug("device list changed server-side") }

// SetupBridge wires the credential store, stream manager, classifier,
// notification presenter and control API together.
func SetupBridge(cfg *config.Config) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Control.Port <= 0 {
		return nil, errors.New("invalid control port")
	}

	backend, err := creds.OpenBackend(cfg.Credentials.Backend, cfg.Credentials.Path, cfg.Credentials.AtRestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	store := creds.NewStore(backend)

	platform, err := notify.NewDBusPlatform()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reach notification service: %w", err)
	}

	records := otp.NewRecords(0)
	presenter := notify.NewPresenter(platform, notify.SystemClipboard{}, records)
	cache := control.NewSMSCache()

	classifier := events.NewClassifier(
		presenter,
		&messaging{store: store, base: cfg.Remote.APIBase},
		cache,
		tickleLog{},
	)

	manager := stream.NewManager(
		stream.WebsocketDialer{},
		cfg.Remote.StreamURL,
		cfg.Stream.BaseDelay,
		cfg.Stream.MaxDelay,
		classifier.Handle,
	)

	// Login and logout through the control API reach the manager here.
	store.OnChange(func(old, cred *creds.Credential) {
		var oldView, newView *stream.CredentialView
		if old != nil {
			oldView = &stream.CredentialView{APIKey: old.APIKey, UserID: old.UserID}
		}
		if cred != nil {
			newView = &stream.CredentialView{APIKey: cred.APIKey, UserID: cred.UserID}
			classifier.SetUserID(cred.UserID)
		} else {
			classifier.SetUserID("")
		}
		manager.HandleCredentialChange(oldView, newView)
	})

	server := control.NewServer(cfg, store, manager, cache, func(apiKey string) control.Remote {
		return api.NewClient(cfg.Remote.APIBase, apiKey)
	})

	// Resume the subscription for a credential saved on a previous run.
	cred, err := store.Load()
	if err != nil {
		logger.Warn("could not load saved credential", zap.Error(err))
	} else if cred != nil {
		classifier.SetUserID(cred.UserID)
		manager.Start(cred.APIKey)
	}

	return &Bridge{
		store:    store,
		manager:  manager,
		platform: platform,
		srv:      server.HTTPServer(),
	}, nil
}

// RunBridge serves the control API until an interrupt, then tears
// everything down.
func RunBridge(b *Bridge) error {
	go func() {
		logger.Info("control API listening", zap.String("addr", b.srv.Addr))
		if err := b.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("control API error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	b.manager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("control API shutdown failed: %w", err)
	}

	if err := b.platform.Close(); err != nil {
		logger.Warn("notification service close failed", zap.Error(err))
	}
	if err := b.store.Close(); err != nil {
		logger.Warn("credential store close failed", zap.Error(err))
	}
	return nil
}
