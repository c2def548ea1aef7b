package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/growpipe"
)

func newPumpCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pump",
		Short: "Copy stdin to stdout through a pipe.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.pump(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// pump runs a writer and a reader goroutine against one pipe until in is
// exhausted and every byte has reached out.
func (a *app) pump(ctx context.Context, in io.Reader, out io.Writer) error {
	opts := append(a.cfg.Pipe.Options(), growpipe.WithLogger(a.logger))
	p, err := growpipe.New(opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	g, ctx := errgroup.WithContext(ctx)
	r, w := p.Open(ctx)

	var written, read int64
	g.Go(func() error {
		defer w.Close()
		n, err := w.ReadFrom(in)
		written = n
		return errors.Wrap(err, "writing to pipe")
	})
	g.Go(func() error {
		n, err := r.WriteTo(out)
		read = n
		return errors.Wrap(err, "reading from pipe")
	})
	err = g.Wait()

	stats := p.Stats()
	a.logger.WithFields(logrus.Fields{
		"written":  written,
		"read":     read,
		"capacity": stats.Capacity,
		"grows":    stats.Grows,
	}).Info("pump finished")
	return err
}
