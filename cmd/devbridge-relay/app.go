package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/syntrixbase/devbridge/internal/actionlog"
	"github.com/syntrixbase/devbridge/internal/config"
	"github.com/syntrixbase/devbridge/internal/core/pubsub"
	"github.com/syntrixbase/devbridge/internal/core/pubsub/memory"
	natspubsub "github.com/syntrixbase/devbridge/internal/core/pubsub/nats"
	"github.com/syntrixbase/devbridge/internal/relay"
	"github.com/syntrixbase/devbridge/internal/server"
	"github.com/syntrixbase/devbridge/pkg/channel"
	"github.com/syntrixbase/devbridge/pkg/channel/wschannel"
)

// app is one relay process: a channel to origins, the action log, the UI
// hub and the HTTP server they are mounted on.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// provider and registry back the memory and nats transports, ws the
	// websocket one. ch is whichever is in use.
	provider pubsub.Provider
	registry *channel.Registry
	ws       *wschannel.Server
	ch       channel.Channel

	tokens *relay.TokenService
	relay  *relay.Relay
	hub    *relay.Hub
	server server.Service
}

// newApp wires every component. Nothing listens until run.
func newApp(ctx context.Context, cfg *config.Config, srv server.Service, reg prometheus.Registerer, gatherer prometheus.Gatherer, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{cfg: cfg, logger: logger, server: srv}

	if cfg.Auth.Enabled {
		tokens, err := relay.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
		a.tokens = tokens
	}

	if err := a.openChannel(ctx); err != nil {
		a.close()
		return nil, err
	}

	f, err := cfg.Relay.Filter()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("relay filters: %w", err)
	}

	log := actionlog.New(actionlog.Options{
		MaxAge:  cfg.Relay.MaxAge,
		Metrics: actionlog.NewMetrics(reg),
		Logger:  logger,
	})
	a.relay = relay.New(relay.Options{
		Channel:     a.ch,
		Log:         log,
		Filter:      f,
		Sync:        cfg.Relay.Sync,
		SendTimeout: cfg.Channel.SendTimeout,
		Logger:      logger,
	})
	a.hub = relay.NewHub(a.relay, a.tokens, logger)

	if a.ws != nil {
		srv.RegisterHTTPHandler("GET "+cfg.Channel.Websocket.Path, a.ws)
	}
	relay.NewHandler(a.relay, a.hub, a.tokens, gatherer, logger).RegisterRoutes(srv.HTTPMux())
	return a, nil
}

func (a *app) openChannel(ctx context.Context) error {
	cc := a.cfg.Channel

	switch cc.Transport {
	case config.TransportWebsocket:
		opts := wschannel.ServerOptions{Plugin: cc.Plugin, Logger: a.logger}
		if cc.Websocket.RequireAuth {
			if a.tokens == nil {
				return errors.New("channel.websocket.require_auth needs auth to be enabled")
			}
			opts.Authorize = a.tokens.Authorize
		}
		a.ws = wschannel.NewServer(opts)
		a.ch = a.ws
		return nil

	case config.TransportMemory:
		a.provider = memory.New()
	case config.TransportNATS:
		a.provider = natspubsub.NewProvider(cc.NATS.URL, cc.NATS.ClientName)
	default:
		return fmt.Errorf("unsupported channel transport %q", cc.Transport)
	}

	a.registry = channel.NewRegistry(&channel.PubSubConnector{
		Provider:      a.provider,
		SubjectPrefix: cc.SubjectPrefix,
		Role:          channel.RoleObserver,
		BufSize:       cc.BufSize,
		Logger:        a.logger,
	}, channel.WithLogger(a.logger))

	client, err := a.registry.Acquire(ctx, cc.Plugin)
	if err != nil {
		return fmt.Errorf("failed to open %s channel: %w", cc.Transport, err)
	}
	a.ch = client
	return nil
}

// run serves until ctx is done, then shuts down.
func (a *app) run(ctx context.Context) error {
	if err := a.relay.Start(); err != nil {
		return err
	}
	go a.hub.Run(ctx)

	a.logger.Info("Relay started",
		"relay_id", a.relay.ID(),
		"transport", a.cfg.Channel.Transport,
		"plugin", a.cfg.Channel.Plugin,
		"auth", a.tokens != nil,
	)
	serveErr := a.server.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown failed", "error", err)
	}
	a.relay.Stop()
	a.close()

	a.logger.Info("Relay stopped")
	return serveErr
}

func (a *app) close() {
	if a.ws != nil {
		if err := a.ws.Close(); err != nil {
			a.logger.Warn("Failed to close channel server", "error", err)
		}
	}
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			a.logger.Warn("Failed to close channel registry", "error", err)
		}
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Warn("Failed to close pubsub provider", "error", err)
		}
	}
}
