// Command btcnoded runs the single-peer node sync core: it connects to
// one Bitcoin peer, drives headers-first sync and UTXO-set construction,
// checkpoints to disk, then idles while serving the JSON-RPC dispatcher
// over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/wizardswallet/btcnode/config"
	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/internal/applog"
	"github.com/wizardswallet/btcnode/rpc"
	"github.com/wizardswallet/btcnode/sync"
)

var logger = applog.NewModuleLogger(applog.ModuleSync)

const shutdownGrace = 5 * time.Second

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML config file",
	}
	networkFlag = cli.StringFlag{
		Name:  "network",
		Usage: `Network to follow ("mainnet", "testnet", "regtest")`,
	}
	peerAddressFlag = cli.StringFlag{
		Name:  "peeraddr",
		Usage: "Address of the single peer to sync from",
	}
	peerPortFlag = cli.UintFlag{
		Name:  "peerport",
		Usage: "Port of the single peer to sync from",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for blockchain/utxo/wallet checkpoints",
	}
	rpcBindFlag = cli.StringFlag{
		Name:  "rpcbind",
		Usage: "Address the JSON-RPC HTTP server listens on",
	}
	coinjoinFlag = cli.BoolFlag{
		Name:  "coinjoin",
		Usage: "Enable the coinjoin RPC procedures",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "btcnoded"
	app.Usage = "single-peer node sync core"
	app.Flags = []cli.Flag{
		configFileFlag,
		networkFlag,
		peerAddressFlag,
		peerPortFlag,
		dataDirFlag,
		rpcBindFlag,
		coinjoinFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String(configFileFlag.Name))
	if err != nil {
		return err
	}
	applyFlags(ctx, cfg)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	var rpcServer *rpc.Server
	onReady := func(st *idle.State) {
		rpcServer = rpc.NewServer(cfg.RPCBind, rpc.DefaultHTTPTimeouts, st)
		go func() {
			if err := rpcServer.ListenAndServe(); err != nil {
				logger.Warn("rpc http server stopped", "err", err)
			}
		}()
	}

	syncDone := make(chan error, 1)
	go func() {
		syncDone <- sync.Run(runCtx, cfg, onReady)
	}()

	err = <-syncDone
	if rpcServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		_ = rpcServer.Shutdown(shutdownCtx)
	}
	return err
}

func applyFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet(networkFlag.Name) {
		cfg.Network = ctx.String(networkFlag.Name)
	}
	if ctx.IsSet(peerAddressFlag.Name) {
		cfg.PeerAddress = ctx.String(peerAddressFlag.Name)
	}
	if ctx.IsSet(peerPortFlag.Name) {
		cfg.PeerPort = uint16(ctx.Uint(peerPortFlag.Name))
	}
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(rpcBindFlag.Name) {
		cfg.RPCBind = ctx.String(rpcBindFlag.Name)
	}
	if ctx.IsSet(coinjoinFlag.Name) {
		cfg.CoinjoinOn = ctx.Bool(coinjoinFlag.Name)
	}
}
