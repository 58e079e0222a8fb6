package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syt1126/StarLink-Pro-app/internal/api"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and progress stream",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = a.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	store := a.observers(ctx, true)
	srv := api.NewServer(api.Config{
		Addr:           a.cfg.HTTP.Addr,
		TrustProxy:     a.cfg.HTTP.TrustProxy,
		MaxUploadBytes: a.cfg.HTTP.MaxUploadBytes,
		Auth:           a.cfg.Auth,
		Stream:         a.cfg.Stream,
		MountIP:        a.cfg.Mount.IP,
		CommandRate:    a.cfg.Mount.CommandRate,
		CommandBurst:   a.cfg.Mount.CommandBurst,
	}, api.Deps{
		Observers: store,
		Tracker:   a.tracker(store),
		Solver:    a.solver(store),
	}, a.logger)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			"addr", a.cfg.HTTP.Addr,
			"auth_enabled", a.cfg.Auth.Enabled,
			"plate_solving_enabled", a.cfg.Astrometry.APIKey != "",
			"observer", store.Get(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.logger.Error("server listen error", "error", err)
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", "error", err)
		return err
	}

	a.logger.Info("server stopped")
	return nil
}

// signalContext ends on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
