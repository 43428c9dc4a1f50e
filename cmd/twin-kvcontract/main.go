// twin-kvcontract simulates the key/value smart contract loyalty records
// are stored in. It serves getData/setData/isAvailable under /contract and
// the shared /admin control plane.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/api"
	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
	"github.com/wondertwin-ai/loyaltynft/pkg/admin"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

const (
	defaultPort    = 8095
	defaultAddress = "0x00000000000000000000000000000000c0ffee00"
)

func main() {
	cfg, err := twincore.ParseFlags("twin-kvcontract", os.Args[1:])
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	address := os.Getenv("CONTRACT_ADDRESS")
	if address == "" {
		address = defaultAddress
	}

	twin := twincore.New(cfg)
	kv := store.New(address)

	api.NewHandler(kv, twin.Middleware()).Routes(twin.Router)

	adminHandler := admin.NewHandler(kv, twin.Middleware(), kv.Clock())
	adminHandler.SetConfigProvider(twin)
	adminHandler.Routes(twin.Router)

	if cfg.SeedFile != "" {
		data, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			log.Fatalf("failed to read seed file: %v", err)
		}
		if err := kv.LoadState(data); err != nil {
			log.Fatalf("failed to load seed data: %v", err)
		}
		twin.Logger.Info("loaded seed data", "file", cfg.SeedFile, "keys", kv.Count())
	}

	twin.Logger.Info("twin-kvcontract ready", "port", cfg.Port, "address", address)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := twin.Serve(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
