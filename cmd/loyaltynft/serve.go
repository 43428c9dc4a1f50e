package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/loyaltynft/internal/api"
	"github.com/wondertwin-ai/loyaltynft/internal/contract"
	"github.com/wondertwin-ai/loyaltynft/pkg/admin"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	srv := twincore.New(&twincore.Config{
		Name:      "loyaltynft",
		Port:      a.cfg.Server.Port,
		Latency:   a.cfg.Server.Latency,
		Verbose:   strings.EqualFold(a.cfg.Log.Level, "debug"),
		LogOutput: a.logOut,
	})

	api.NewHandler(a.ctl, a.wallet, srv.Middleware(), a.metrics, a.logger).Routes(srv.Router)

	mem, _ := a.contract.(*contract.Memory)
	adminHandler := admin.NewHandler(api.NewAdminState(a.ctl, mem, a.hooks, a.logger), srv.Middleware(), nil)
	adminHandler.SetFlusher(a.hooks)
	adminHandler.SetConfigProvider(srv)
	adminHandler.Routes(srv.Router)

	a.metrics.TrackRecords(func() int { return len(a.ctl.Records()) })

	if err := a.ctl.Load(ctx); err != nil {
		a.logger.Error("initial load failed", "error", err)
	}

	a.logger.Info("loyaltynft ready",
		"port", a.cfg.Server.Port,
		"backend", a.cfg.Contract.Backend,
		"wallet", a.wallet.Address(),
		"records", len(a.ctl.Records()),
	)
	return srv.Serve(ctx)
}
