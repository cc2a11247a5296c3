// Package main is the entry point for the bot fleet daemon: it wires the
// broker, store, event bus, and fleet controller together, then hands
// control to an interactive shell for operating the running fleet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/config"
	"github.com/torqfleet/botfleet/internal/eventbus"
	"github.com/torqfleet/botfleet/internal/fleet"
	"github.com/torqfleet/botfleet/internal/globalstate"
	"github.com/torqfleet/botfleet/internal/store"
	"github.com/torqfleet/botfleet/internal/strategy"
	"github.com/torqfleet/botfleet/internal/strategy/examples"
	sync_ "github.com/torqfleet/botfleet/internal/sync"
	"github.com/torqfleet/botfleet/internal/util"
	"github.com/torqfleet/botfleet/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "fleet.yaml", "Path to fleet configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[FLEET] ", log.LstdFlags)
	slog := newStructuredLogger(cfg)

	logger.Printf("starting bot fleet daemon, %d bot(s) configured", len(cfg.Bots))

	transport := broker.NewJSONRPCTransport("unix", cfg.Broker.Path)
	terminal := broker.NewTerminalClient(transport, cfg.Broker.SymbolPrefix, cfg.Broker.SymbolSuffix)
	br := broker.NewCircuitBreakerBroker(terminal)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.Broker.ConnectTimeout())
	defer cancelConnect()
	if err := br.Initialize(connectCtx, broker.ConnectConfig{
		Path:     cfg.Broker.Path,
		Login:    cfg.Broker.Login,
		Password: cfg.Broker.Password,
		Server:   cfg.Broker.Server,
		Timeout:  cfg.Broker.ConnectTimeout(),
	}); err != nil {
		logger.Printf("failed to connect to broker: %v", err)
		return 1
	}
	logger.Printf("connected to broker %s as login %d", cfg.Broker.Server, cfg.Broker.Login)

	dbPath := store.DefaultDBPath(cfg.Storage.DataDir, cfg.Broker.Login)
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Printf("failed to open trade store: %v", err)
		return 1
	}
	defer st.Close()

	state := globalstate.New()
	bus := eventbus.New(eventbus.WithLogger(logger), eventbus.WithPauseChecker(state))

	ctrl := fleet.New(br, st, bus, state,
		fleet.WithLogger(logger),
		fleet.WithStructuredLogger(slog),
		fleet.WithSyncService(sync_.New(br, st, sync_.WithInterval(cfg.Sync.IntervalDuration()))),
	)

	registry := buildStrategyRegistry()
	for _, botCfg := range cfg.Bots {
		workerCfg, err := toWorkerConfig(botCfg, registry)
		if err != nil {
			logger.Printf("skipping bot config %+v: %v", botCfg, err)
			continue
		}
		if err := ctrl.AddBot(workerCfg); err != nil {
			logger.Printf("failed to register bot %s: %v", workerCfg.BotID(), err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping fleet...")
		cancel()
	}()

	var statusServer *http.Server
	if cfg.Status.Enabled {
		api := fleet.NewStatusAPI(ctrl, cfg.Status.AuthToken, slog)
		statusServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Status.Port),
			Handler:           api.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("status api listening on %s", statusServer.Addr)
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("status api error: %v", err)
			}
		}()
	}

	runShell(ctx, ctrl, logger)

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = statusServer.Shutdown(shutdownCtx)
	}

	ctrl.Shutdown()
	logger.Println("fleet stopped")
	return 0
}

func newStructuredLogger(cfg *config.Config) *logrus.Logger {
	slog := logrus.New()
	slog.SetOutput(os.Stdout)
	slog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		slog.SetLevel(lvl)
	} else {
		slog.SetLevel(logrus.InfoLevel)
	}
	return slog
}

// buildStrategyRegistry maps a BotConfig.Strategy name to a constructor.
// Strategies are added here by the host, not discovered dynamically,
// enforcing the static-registration design spec.md §9 requires in place
// of the source's folder-scanning class discovery.
func buildStrategyRegistry() map[string]func(symbols []string) strategy.Strategy {
	return map[string]func(symbols []string) strategy.Strategy{
		"SimpleTimeStrategy": func(symbols []string) strategy.Strategy {
			return examples.NewSimpleTime(symbols)
		},
		"MeanReversionStrategy": func(symbols []string) strategy.Strategy {
			return examples.NewMeanReversion(examples.NewMeanReversionConfig(symbols))
		},
	}
}

func toWorkerConfig(b config.BotConfig, registry map[string]func(symbols []string) strategy.Strategy) (worker.Config, error) {
	build, ok := registry[b.Strategy]
	if !ok {
		return worker.Config{}, fmt.Errorf("unknown strategy %q", b.Strategy)
	}
	tf, err := util.ParseTimeframe(b.Timeframe)
	if err != nil {
		return worker.Config{}, err
	}
	return worker.Config{
		Strategy:        build([]string{b.Symbol}),
		Symbol:          b.Symbol,
		Timeframe:       tf,
		IntervalSeconds: b.IntervalSeconds,
		Window:          b.Window,
	}, nil
}
