package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/buildinfo"
	"github.com/dmitrijs2005/syncserver/internal/client/cli"
	"github.com/dmitrijs2005/syncserver/internal/client/config"
	"github.com/dmitrijs2005/syncserver/internal/netx"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	if !netx.Reachable(ctx, cfg.ServerEndpointAddr, 2*time.Second) {
		log.Printf("server %s is not reachable, changes are kept locally until it is", cfg.ServerEndpointAddr)
	}

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
