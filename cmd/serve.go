package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/damage-vis/internal/dataset"
	"github.com/sells-group/damage-vis/internal/overlay"
	"github.com/sells-group/damage-vis/internal/preview"
)

var (
	servePort int
	serveRoot string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the overlay preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveRoot != "" {
			cfg.Render.Root = serveRoot
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		layout, err := dataset.NewLayout(cfg.Render.Root, cfg.Render.Out)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newPreviewServer(layout).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting preview server",
			zap.Int("port", cfg.Server.Port),
			zap.String("root", layout.Root),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "dataset split directory (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newPreviewServer(layout dataset.Layout) *preview.Server {
	return preview.NewServer(layout, overlay.NewRenderer(), preview.Options{
		LineWidth:      cfg.Render.LineWidth,
		CacheSize:      cfg.Preview.CacheSize,
		CacheTTL:       cfg.Preview.CacheTTL,
		RatePerSecond:  cfg.Preview.RatePerSecond,
		Burst:          cfg.Preview.Burst,
		AllowedOrigins: cfg.Preview.AllowedOrigins,
	})
}
