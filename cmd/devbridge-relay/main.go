// devbridge-relay receives store traffic from bridged applications, keeps
// per-instance histories and serves them to debugging UIs over HTTP and
// websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/syntrixbase/devbridge/internal/config"
	"github.com/syntrixbase/devbridge/internal/logging"
	"github.com/syntrixbase/devbridge/internal/relay"
	"github.com/syntrixbase/devbridge/internal/server"
)

type flags struct {
	configDir  string
	port       int
	transport  string
	natsURL    string
	sync       bool
	issueToken string
}

func parseFlags(args []string, stderr io.Writer) (*flags, *pflag.FlagSet, error) {
	var f flags
	fs := pflag.NewFlagSet("devbridge-relay", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configDir, "config", "c", config.DefaultDir, "directory holding relay.yml and relay.local.yml")
	fs.IntVarP(&f.port, "port", "p", 0, "HTTP port (overrides server.http_port)")
	fs.StringVar(&f.transport, "transport", "", "channel transport: memory, nats or websocket")
	fs.StringVar(&f.natsURL, "nats-url", "", "NATS server URL (overrides channel.nats.url)")
	fs.BoolVar(&f.sync, "sync", false, "start in sync mode")
	fs.StringVar(&f.issueToken, "issue-token", "", "print a UI token for this subject and exit")
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return &f, fs, nil
}

// apply layers explicitly set flags over cfg and re-validates it.
func (f *flags) apply(cfg *config.Config, fs *pflag.FlagSet) error {
	if fs.Changed("port") {
		cfg.Server.HTTPPort = f.port
	}
	if fs.Changed("transport") {
		cfg.Channel.Transport = f.transport
	}
	if fs.Changed("nats-url") {
		cfg.Channel.NATS.URL = f.natsURL
	}
	if fs.Changed("sync") {
		cfg.Relay.Sync = f.sync
	}
	if err := cfg.Server.Validate(); err != nil {
		return err
	}
	return cfg.Channel.Validate()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(f.configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := f.apply(cfg, fs); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if f.issueToken != "" {
		return issueToken(cfg.Auth, f.issueToken, stdout)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer func() {
		if err := logging.Shutdown(); err != nil {
			fmt.Fprintf(stderr, "failed to close logs: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.InitDefault(cfg.Server, slog.Default())
	a, err := newApp(ctx, cfg, server.Default(), prometheus.DefaultRegisterer, prometheus.DefaultGatherer, slog.Default())
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func issueToken(cfg config.AuthConfig, subject string, w io.Writer) error {
	if !cfg.Enabled {
		return errors.New("auth is disabled; set auth.secret or DEVBRIDGE_AUTH_SECRET")
	}
	tokens, err := relay.NewTokenService(cfg.Secret, cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(subject, "")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
