// Command gateway runs the Soroban channel-account submission gateway:
// an HTTP front door over internal/gateway.Handler, wired to a Redis
// (or in-process) KV store, a Soroban RPC endpoint, and the hosting
// runtime's relayer API.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/log"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/config"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gateway"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/relayer"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/sorobanrpc"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "Address the gateway's HTTP server listens on (overrides LISTEN_ADDR)",
	}
)

func main() {
	app := &cli.App{
		Name:  "gateway",
		Usage: "Soroban channel-account transaction-submission gateway",
		Flags: []cli.Flag{verbosityFlag, listenFlag},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("gateway: fatal error", "err", err)
	}
}

func run(ctx *cli.Context) error {
	glogHandler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), false)
	log.SetDefault(log.NewLogger(glogHandler))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("gateway: loading config: %w", err)
	}
	if addr := ctx.String(listenFlag.Name); addr != "" {
		cfg.ListenAddr = addr
	}
	log.Info("gateway: configuration loaded", "config", cfg.String())

	store := buildStore(cfg)
	rpc := sorobanrpc.NewHTTPClient(cfg.SorobanRPCEndpoint)
	rel := relayer.NewHTTPRelayer(cfg.RelayerBaseURL)

	handler := gateway.New(cfg, store, rpc, rel)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Healthz)
	mux.Handle("/", handler)

	log.Info("gateway: listening", "addr", cfg.ListenAddr)
	return http.ListenAndServe(cfg.ListenAddr, mux)
}

// buildStore picks RedisStore when REDIS_ADDR is configured, else a
// MemStore — the same degrade-to-a-usable-default posture
// config.LoadFromEnv applies to its own optional settings.
func buildStore(cfg *config.Config) kvstore.Store {
	if cfg.RedisAddr == "" {
		log.Warn("gateway: REDIS_ADDR not set, using in-process MemStore (state will not survive a restart)")
		return kvstore.NewMemStore()
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	return kvstore.NewRedisStore(client)
}
