// Command molsimd serves the session API, the artifact store and the push channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/askiada/molsim/internal/config"
	"github.com/askiada/molsim/internal/logger"
	"github.com/askiada/molsim/internal/server"
	"github.com/askiada/molsim/internal/sessionstore"
	"github.com/askiada/molsim/pkg/artifact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, args []string) error {
	flags := flag.NewFlagSet("molsimd", flag.ContinueOnError)
	flags.SetOutput(out)
	configFile := flags.String("config", "", "YAML config file.")
	envFile := flags.String("env-file", ".env", "dotenv file, skipped when missing.")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	cfg, err := config.Load(config.Options{File: *configFile, EnvFile: *envFile})
	if err != nil {
		return err
	}

	l, err := logger.New(cfg.Log, out)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeSessions()

	artifacts := artifact.New(afero.NewOsFs(), cfg.Artifacts.Root,
		artifact.WithExtension(cfg.Artifacts.Extension), artifact.WithLogger(l))

	srv := server.New(server.Config{Addr: cfg.Server.Addr, ShutdownTimeout: cfg.Server.ShutdownTimeout},
		sessions, artifacts, server.WithLogger(l))

	return srv.ListenAndServe(ctx)
}

func newSessionStore(ctx context.Context, cfg config.Config, l zerolog.Logger) (sessionstore.Store, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		r, err := sessionstore.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			return nil, nil, err
		}
		l.Info().Dur("ttl", cfg.Redis.TTL).Msg("redis session store")

		return r, func() { _ = r.Close() }, nil
	default:
		l.Info().Msg("in-memory session store")

		return sessionstore.NewMemory(), func() {}, nil
	}
}
