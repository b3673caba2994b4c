// Command web serves the ChatDocs front end: login and registration, the
// session gate in front of the document pages, and the document/chat proxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatdocs.app/internal/config"
	"chatdocs.app/internal/obs"
	"chatdocs.app/internal/store"
	"chatdocs.app/internal/store/migrations"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "web",
		Short:         "ChatDocs web front end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	})
	cmd.AddCommand(migrateCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "web %s (%s)\n", version, commit)
		},
	})
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	obs.SetLogger(obs.NewLogger(os.Stdout, cfg.LogLevel))
	return cfg, nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := obs.Logger()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("starting web", "version", version, "addr", ln.Addr().String(), "env", cfg.Env, "store", cfg.Store.Driver)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential store schema",
	}
	run := func(fn func(context.Context, *store.Handle) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.DriverMemory {
				return errors.New("the memory store has no schema")
			}
			sc := cfg.Store
			sc.AutoMigrate = false
			h, err := store.Open(cmd.Context(), sc)
			if err != nil {
				return err
			}
			defer h.Close()
			return fn(cmd.Context(), h)
		}
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, h *store.Handle) error {
			return migrations.Up(ctx, h.DB, h.Dialect)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: run(func(ctx context.Context, h *store.Handle) error {
			return migrations.Down(ctx, h.DB, h.Dialect)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: run(func(ctx context.Context, h *store.Handle) error {
			v, err := migrations.Version(ctx, h.DB, h.Dialect)
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d\n", v)
			return nil
		}),
	})
	return cmd
}
