package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/commonground/progression/internal/api"
)

// ─── serve ──────────────────────────────────────────────────────────────────

const shutdownTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Override metrics.listen")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health and metrics listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.close()

		addr := sess.cfg.Metrics.Listen
		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			addr = v
		}

		srv := api.NewServer(sess.db, sess.log)
		if sess.cfg.Metrics.Enabled {
			srv.EnableMetrics()
		}
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sess.log.Info("listening", zap.String("addr", addr), zap.Bool("metrics", sess.cfg.Metrics.Enabled))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			sess.log.Info("shutting down")
			return httpSrv.Shutdown(shutCtx)
		})

		fmt.Fprintf(cmd.OutOrStdout(), "🚀 Serving on %s (Ctrl+C to stop)\n", addr)
		return g.Wait()
	},
}
