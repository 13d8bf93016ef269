package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/turtle_trader/internal/config"
	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/infrastructure/exchange"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to query")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Bybit Interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Exchange.RESTEndpoint)

	adapter := exchange.NewBybitAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Check Public Endpoint (Price)
	price, err := adapter.GetCurrentPrice(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", *symbol, price)
	}

	// 3. Instrument Info
	inst, err := adapter.GetInstrument(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get instrument: %v\n", err)
	} else {
		fmt.Printf("✅ Instrument (%s): Status=%s, Multiplier=%g, Tick=%g, QtyStep=%g, MinQty=%g\n",
			inst.Symbol, inst.Status, inst.ContractMultiplier, inst.TickSize, inst.QtyStep, inst.MinQty)
	}

	// 4. Klines
	candles, err := adapter.GetCandles(ctx, *symbol, domain.Interval1h, 5)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
	} else {
		fmt.Printf("✅ Last %d hourly candles:\n", len(candles))
		for _, c := range candles {
			fmt.Printf("   %s O=%g H=%g L=%g C=%g\n", time.UnixMilli(c.Time).UTC().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
		}
	}
}
