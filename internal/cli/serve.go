package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fusegraph/internal/server"
	"github.com/matzehuels/fusegraph/pkg/config"
	"github.com/matzehuels/fusegraph/pkg/pipeline"
	"github.com/matzehuels/fusegraph/pkg/store"
)

// newServeCmd creates the serve command running the debug HTTP service.
func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fusegraph debug HTTP service",
		Long: `Run the fusegraph debug HTTP service.

The service accepts IR modules on POST /api/v1/partition and persists the
resulting reports in the configured run store (in-memory by default,
MongoDB when configured).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := loggerFromContext(ctx)

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	runner := pipeline.NewRunner(newCache(ctx, cfg, false))
	defer runner.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(runner, st, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newStore builds the run store selected by the config.
func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == "mongo" {
		return store.NewMongoStore(ctx, cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection)
	}
	return store.NewMemoryStore(), nil
}
