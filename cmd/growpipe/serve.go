package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jacoelho/growpipe/httpapi"
	"github.com/jacoelho/growpipe/registry"
)

const shutdownWait = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pipes over HTTP and websockets.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "address to listen on")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	reg := registry.New(a.logger, a.cfg.Pipe.Options()...)
	srv := &http.Server{
		Addr: a.cfg.Listen,
		Handler: httpapi.New(httpapi.Config{
			Registry:    reg,
			Logger:      a.logger,
			ReadTimeout: a.cfg.Pipe.ReadTimeout,
			Upgrader: websocket.Upgrader{
				CheckOrigin: checkOrigin(a.cfg.AllowedOrigins),
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := listen(ctx, a.cfg.Listen, a.cfg.ListenBackOff(), a.logger)
	if err != nil {
		_ = reg.Close()
		return err
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.WithField("listen", ln.Addr().String()).Info("serving")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		_ = reg.Close()
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	// closing the registry releases requests blocked on empty pipes
	_ = reg.Close()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// checkOrigin accepts websocket upgrades from the listed origins. An empty
// list keeps the same-origin check and "*" accepts any origin.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// listen binds addr, retrying with b while the address is unavailable, for
// example while a previous instance is still shutting down.
func listen(ctx context.Context, addr string, b backoff.BackOff, logger logrus.FieldLogger) (net.Listener, error) {
	var ln net.Listener
	err := backoff.RetryNotify(func() error {
		var err error
		ln, err = net.Listen("tcp", addr)
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.WithError(err).WithField("wait", wait).Warn("listen failed, retrying")
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	return ln, nil
}
