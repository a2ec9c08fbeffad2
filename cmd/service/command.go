package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quka-ai/supportchat/app/core"
	v1 "github.com/quka-ai/supportchat/app/logic/v1"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

type Options struct {
	ConfigPath string
	Init       bool
}

func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "toml config path, reads the environment when empty")
	flagSet.BoolVarP(&o.Init, "init", "i", false, "seed the default knowledge base before serving")
}

func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "service",
		Short: "customer support chat service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func Run(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	if opts.Init {
		if err := seed(app); err != nil {
			return err
		}
	}
	if err := app.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    app.Cfg().Addr,
		Handler: NewRouter(app),
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigs:
		slog.Info("shutting down", slog.String("signal", sig.String()))
	case serveErr = <-errc:
		slog.Error("http server stopped", slog.String("error", serveErr.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("failed to drain http server", slog.String("error", err.Error()))
	}
	if err := app.Shutdown(); err != nil {
		slog.Error("failed to release core resources", slog.String("error", err.Error()))
	}
	return serveErr
}

func seed(app *core.Core) error {
	n, err := v1.NewKnowledgeLogic(context.Background(), app).Seed()
	if err != nil {
		return err
	}
	slog.Info("knowledge base seeded", slog.Int("entries", n))
	return nil
}

func NewSeedCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "insert the default knowledge entries when the table is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
			defer app.Shutdown()
			if err := seed(app); err != nil {
				return err
			}
			fmt.Println("seed finished")
			return nil
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}
