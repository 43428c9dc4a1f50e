package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/wondertwin-ai/loyaltynft/internal/authgate"
	"github.com/wondertwin-ai/loyaltynft/internal/config"
	"github.com/wondertwin-ai/loyaltynft/internal/contract"
	"github.com/wondertwin-ai/loyaltynft/internal/controller"
	"github.com/wondertwin-ai/loyaltynft/internal/logging"
	"github.com/wondertwin-ai/loyaltynft/internal/metrics"
	"github.com/wondertwin-ai/loyaltynft/internal/records"
	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
	"github.com/wondertwin-ai/loyaltynft/pkg/webhook"
)

// app wires every component from the configuration.
type app struct {
	cfg      *config.Config
	logOut   io.Writer
	logger   *slog.Logger
	contract contract.Contract
	wallet   *wallet.Wallet
	store    *records.Store
	ctl      *controller.Controller
	hooks    *webhook.Dispatcher
	metrics  *metrics.Metrics

	closers []io.Closer
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}
	return config.Load(flags.configPath)
}

func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	out, closer := logging.Output(cfg.Log, os.Stderr)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.logOut = out
	a.logger = logging.New(out, cfg.Log.Level)

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	c, err := contract.Open(ctx, cfg.Contract, a.logger)
	if err != nil {
		return fmt.Errorf("open contract: %w", err)
	}
	a.contract = c
	a.closers = append(a.closers, closerFunc(func() error { return contract.Close(c) }))

	if cfg.Wallet.PrivateKey != "" {
		if a.wallet, err = wallet.FromHex(cfg.Wallet.PrivateKey); err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
	} else {
		if a.wallet, err = wallet.Generate(); err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		a.logger.Warn("no wallet.private_key configured, using an ephemeral wallet", "address", a.wallet.Address())
	}

	address := cfg.Contract.Address
	if ad, ok := c.(contract.Addresser); ok && ad.Address() != "" {
		address = ad.Address()
	}
	gate, err := authgate.New(authgate.Options{
		ContractAddress:  address,
		ChainID:          cfg.Contract.ChainID,
		DurationDays:     cfg.Auth.DurationDays,
		Delay:            cfg.Auth.Delay,
		VerifySignatures: cfg.Auth.VerifySignatures,
		Logger:           a.logger,
	})
	if err != nil {
		return err
	}

	a.metrics = metrics.New()
	a.store = records.New(c, records.Options{
		Logger:    a.logger,
		Reconcile: cfg.Records.Reconcile,
		Observer:  a.metrics,
	})
	a.hooks = webhook.NewDispatcher(webhook.Config{
		URL:         cfg.Webhook.URL,
		Secret:      cfg.Webhook.Secret,
		Logger:      a.logger,
		MaxRetries:  cfg.Webhook.MaxRetries,
		RetryDelay:  cfg.Webhook.RetryDelay,
		AutoDeliver: cfg.Webhook.AutoDeliver,
	})

	a.ctl, err = controller.New(controller.Options{
		Store:  a.store,
		Gate:   gate,
		Notify: a.hooks,
		Logger: a.logger,
	})
	return err
}

// Close waits for webhook deliveries and releases the contract and log
// file.
func (a *app) Close() error {
	if a.ctl != nil {
		a.ctl.Close()
	}
	if a.hooks != nil {
		a.hooks.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
