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
	"go.uber.org/zap"

	"sdnlab/internal/controller/controllertest"
)

func newFakeControllerCmd(g *globals) *cobra.Command {
	var flags struct {
		addr string
	}

	cmd := &cobra.Command{
		Use:   "fake-controller",
		Short: "Serve an in-memory controller REST API for dry runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fake := controllertest.New()
			srv := &http.Server{
				Addr:              flags.addr,
				Handler:           logRequests(g.log, fake),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			g.log.Info("Fake controller listening", zap.String("addr", flags.addr))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			g.log.Info("Fake controller stopped",
				zap.Int("requests", len(fake.Requests())),
				zap.Strings("dhcp_instances", fake.InstanceNames()),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", ":8080", "Listen address")
	return cmd
}

func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}
