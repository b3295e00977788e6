package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/infrastructure/config"
	"github.com/payflow/payflow/internal/infrastructure/logging"
	"github.com/payflow/payflow/pkg/payflow"
)

const shutdownTimeout = 10 * time.Second

func (c *CLI) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Address = addr
			}
			return Serve(cmd.Context(), c.cfg, c.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from PAYFLOW_ADDR)")
	return cmd
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	rt, err := payflow.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("storage close error", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting payflow server",
			zap.String("addr", cfg.Address),
			zap.String("backend", cfg.Storage.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down payflow server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}
	return nil
}
