package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/config"
	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/infrastructure/exchange"
	"github.com/vitos/turtle_trader/internal/infrastructure/logger"
	"github.com/vitos/turtle_trader/internal/infrastructure/storage"
	"github.com/vitos/turtle_trader/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	symbol := flag.String("symbol", "", "instrument to replay (default: first configured)")
	bars := flag.Int("bars", 1000, "number of bars to replay")
	cached := flag.Bool("cached", false, "replay candles from the sqlite cache instead of Bybit")
	asJSON := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	inst := cfg.Instruments[0]
	if *symbol != "" {
		found := false
		for _, i := range cfg.Instruments {
			if i.Symbol == *symbol {
				inst, found = i, true
				break
			}
		}
		if !found {
			inst = domain.InstrumentConfig{Symbol: *symbol, Interval: domain.Interval1h}
		}
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	bybit := exchange.NewBybitAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log.Named("bybit"))

	var candles []domain.Candle
	if *cached {
		candles, err = store.ListCandles(ctx, inst.Symbol, inst.Interval, *bars)
	} else {
		candles, err = bybit.GetCandles(ctx, inst.Symbol, inst.Interval, *bars)
		if err == nil {
			// the last kline may still be forming
			candles, _ = usecase.SplitForming(candles, inst.Interval, time.Now())
			if err := store.SaveCandles(ctx, inst.Symbol, candles); err != nil {
				log.Warn("Failed to cache candles", zap.Error(err))
			}
		}
	}
	if err != nil {
		log.Fatal("Failed to load candles", zap.String("symbol", inst.Symbol), zap.Error(err))
	}
	if len(candles) == 0 {
		log.Fatal("No candles to replay", zap.String("symbol", inst.Symbol))
	}

	multiplier := inst.ContractMultiplier
	if multiplier <= 0 {
		if *cached {
			multiplier = 1
		} else if info, err := bybit.GetInstrument(ctx, inst.Symbol); err == nil {
			multiplier = info.ContractMultiplier
		} else {
			log.Warn("Using multiplier 1", zap.Error(err))
			multiplier = 1
		}
	}

	bt, err := usecase.NewBacktester(exchange.NewPaperExchange(nil), cfg.Turtle, log.Named("backtest"))
	if err != nil {
		log.Fatal("Invalid turtle parameters", zap.Error(err))
	}
	res, err := bt.Run(ctx, inst.Symbol, multiplier, candles)
	if err != nil {
		log.Fatal("Backtest failed", zap.Error(err))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatal("Failed to encode result", zap.Error(err))
		}
		return
	}

	s := res.Summary
	first := time.UnixMilli(candles[0].Time).UTC()
	last := time.UnixMilli(candles[len(candles)-1].Time).UTC()
	fmt.Printf("Backtest %s %s: %d bars, %s .. %s\n", inst.Symbol, inst.Interval, res.Bars, first.Format(time.RFC3339), last.Format(time.RFC3339))
	fmt.Printf("Orders:        %d\n", s.Orders)
	fmt.Printf("Trades:        %d\n", s.Trades)
	fmt.Printf("PnL:           %.2f\n", s.PnL)
	fmt.Printf("Win rate:      %.1f%%\n", s.WinRate*100)
	fmt.Printf("Profit factor: %.2f\n", s.ProfitFactor)
	fmt.Printf("Max drawdown:  %.2f%%\n", s.MaxDrawdown)
	fmt.Printf("Final equity:  %.2f\n", s.FinalEquity)
	for _, t := range res.Trades {
		fmt.Printf("  %s %-5s size=%-10g entry=%-12.4f exit=%-12.4f pnl=%-12.2f add_ons=%d\n",
			t.OpenedAt.UTC().Format("2006-01-02 15:04"), t.Side, t.Size, t.EntryPrice, t.ExitPrice, t.RealizedPnL, t.AddOns)
	}
}
