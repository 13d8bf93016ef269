package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/config"
	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/infrastructure/exchange"
	"github.com/vitos/turtle_trader/internal/infrastructure/logger"
	"github.com/vitos/turtle_trader/internal/infrastructure/storage"
	"github.com/vitos/turtle_trader/internal/usecase"
	"github.com/vitos/turtle_trader/internal/web"
)

const reconnectDelay = 5 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}

	// 4. Init Exchange. Market data always comes from Bybit; orders go to the
	// paper venue unless running live.
	bybit := exchange.NewBybitAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log.Named("bybit"))

	var (
		broker       domain.Broker = bybit
		paper        *exchange.PaperExchange
		exchangeName = cfg.Exchange.Name
	)
	if cfg.Mode == config.ModePaper {
		paper = exchange.NewPaperExchange(log.Named("paper"))
		broker = paper
		exchangeName = "paper"
	}

	// 5. Init Service
	svc, err := usecase.NewTurtleService(bybit, broker, store, store, cfg.Turtle, cfg.Instruments, exchangeName, log)
	if err != nil {
		log.Fatal("Failed to init turtle service", zap.Error(err))
	}
	if err := svc.SetWarmupBars(cfg.Warmup.Bars); err != nil {
		log.Fatal("Invalid warmup bar count", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Warmup(ctx); err != nil {
		log.Error("Warmup incomplete", zap.Error(err))
	}
	if err := svc.Start(ctx); err != nil {
		log.Error("Failed to start trading", zap.Error(err))
	}

	// 6. Connect WS and feed ticks
	bybit.OnPriceUpdate(func(tick domain.Tick) {
		if paper != nil {
			paper.SetPrice(tick.Symbol, tick.Price, tick.Time)
		}
		_, err := svc.ProcessTick(ctx, tick)
		switch {
		case errors.Is(err, domain.ErrOrderThrottled):
			log.Debug("Order request held back", zap.String("symbol", tick.Symbol), zap.Error(err))
		case err != nil:
			log.Error("Error processing tick", zap.String("symbol", tick.Symbol), zap.Error(err))
		}
	})

	symbols := svc.Symbols()
	if err := bybit.ConnectWS(symbols); err != nil {
		log.Error("Failed to connect websocket", zap.Error(err))
	}
	go keepConnected(ctx, bybit, symbols, log)

	// 7. Fill Worker
	workerDone := usecase.NewFillWorker(svc, cfg.FillPollInterval(), log.Named("fills")).Start(ctx)

	// 8. Init Web Server
	server := web.NewServer(cfg.Server.Port, svc, log.Named("web"))
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Turtle trader running",
		zap.String("mode", cfg.Mode),
		zap.Strings("symbols", symbols),
		zap.Int("port", cfg.Server.Port),
	)

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	<-workerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	svc.Stop(shutdownCtx)
	err = multierr.Combine(
		server.Shutdown(shutdownCtx),
		bybit.Close(),
		store.Close(),
	)
	if err != nil {
		log.Error("Shutdown finished with errors", zap.Error(err))
	}
}

// keepConnected redials the websocket whenever the connection drops.
func keepConnected(ctx context.Context, bybit *exchange.BybitAdapter, symbols []string, log *zap.Logger) {
	for {
		done := bybit.Done()
		if done == nil {
			closed := make(chan struct{})
			close(closed)
			done = closed
		}
		select {
		case <-ctx.Done():
			return
		case <-done:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		log.Warn("Reconnecting websocket", zap.Strings("symbols", symbols))
		if err := bybit.ConnectWS(symbols); err != nil {
			log.Error("Websocket reconnect failed", zap.Error(err))
		}
	}
}
