package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dkovalev/papertrade/internal/infrastructure/pricefeed"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Market struct {
		Symbol string `yaml:"symbol"`
	} `yaml:"market"`
	Feed struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"feed"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	symbol := cfg.Market.Symbol
	if symbol == "" {
		symbol = "BTCUSDT"
	}

	fmt.Printf("Testing price feed...\n")
	fmt.Printf("Symbol: %s\n", symbol)
	fmt.Printf("REST Endpoint: %s\n", cfg.Feed.RESTEndpoint)
	fmt.Printf("WS Endpoint: %s\n", cfg.Feed.WSEndpoint)

	source := pricefeed.NewBybitSource(cfg.Feed.RESTEndpoint, cfg.Feed.WSEndpoint, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Check REST (Ticker)
	price, err := source.CurrentPrice(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %s\n", symbol, price.String())
	}

	// 3. Check WS (Trade Stream)
	updates := make(chan decimal.Decimal, 1)
	source.OnPriceUpdate(func(sym string, p decimal.Decimal) {
		if sym != symbol {
			return
		}
		select {
		case updates <- p:
		default:
		}
	})

	if err := source.Subscribe([]string{symbol}); err != nil {
		fmt.Printf("❌ Failed to subscribe: %v\n", err)
		os.Exit(1)
	}
	defer source.Close()

	fmt.Printf("Waiting for a trade print (up to 30s)...\n")
	select {
	case p := <-updates:
		fmt.Printf("✅ Trade stream delivered: %s\n", p.String())
	case <-ctx.Done():
		fmt.Printf("❌ No trade received before timeout\n")
		os.Exit(1)
	}
}
