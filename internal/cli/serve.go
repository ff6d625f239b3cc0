package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/reunify/internal/generation"
	"github.com/rcliao/reunify/internal/session"
	"github.com/rcliao/reunify/internal/web"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web app",
		Run:   runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (overrides config)")
	cmd.Flags().String("base-url", "", "Public base URL used in share links (overrides config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := generation.EnvKey(); err != nil {
		log.Warn(ctx, "no model credential in the environment; generation will fail until API_KEY is set")
	}

	arc, st, err := openArchive(ctx, cfg, log)
	if err != nil {
		exitErr("open archive", err)
	}
	defer st.Close()

	sessions := session.NewManager(newGenerator(cfg, log), log, cfg.SessionTTL)
	srv, err := web.New(web.Options{
		Sessions:       sessions,
		Archive:        arc,
		Logger:         log,
		BaseURL:        cfg.BaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		LocketTTL:      cfg.LocketTTL,
	})
	if err != nil {
		exitErr("build web server", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "listening", "addr", cfg.Listen, "base_url", cfg.BaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return sessions.Run(gctx, 0) })
	g.Go(func() error { return arc.Run(gctx, cfg.PurgeInterval) })

	if err := g.Wait(); err != nil {
		exitErr("serve", err)
	}
	log.Info(context.Background(), "stopped")
}
