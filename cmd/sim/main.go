package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dkovalev/papertrade/internal/infrastructure/logger"
	"github.com/dkovalev/papertrade/internal/infrastructure/pricefeed"
	"github.com/dkovalev/papertrade/internal/usecase"
	"github.com/dkovalev/papertrade/internal/web"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Market struct {
		Symbol string `yaml:"symbol" env:"SIM_SYMBOL"`
	} `yaml:"market"`
	Feed struct {
		RESTEndpoint    string `yaml:"rest_endpoint" env:"SIM_FEED_REST"`
		WSEndpoint      string `yaml:"ws_endpoint" env:"SIM_FEED_WS"`
		PollIntervalSec int    `yaml:"poll_interval_sec" env:"SIM_POLL_INTERVAL_SEC"`
	} `yaml:"feed"`
	Logging struct {
		Level string `yaml:"level" env:"SIM_LOG_LEVEL"`
		File  string `yaml:"file" env:"SIM_LOG_FILE"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port" env:"SIM_PORT"`
	} `yaml:"server"`
	TemplatesDir string `yaml:"templates_dir" env:"SIM_TEMPLATES_DIR"`
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
	// 1. Load Config (.env is optional, env vars override the yaml file)
	_ = godotenv.Load()

	configPath := os.Getenv("SIM_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse env overrides: %v\n", err)
		os.Exit(1)
	}
	if cfg.Market.Symbol == "" {
		cfg.Market.Symbol = "BTCUSDT"
	}
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = "templates"
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Account
	account := usecase.NewAccountService(cfg.Market.Symbol, log)
	log.Info("Paper account ready",
		zap.String("market", account.Market()),
		zap.String("starting_balance", account.Balance().Available.String()),
	)

	// 4. Init Price Feed (Bybit public market data)
	feed := pricefeed.NewBybitSource(cfg.Feed.RESTEndpoint, cfg.Feed.WSEndpoint, log)

	feed.OnPriceUpdate(func(symbol string, price decimal.Decimal) {
		if symbol != cfg.Market.Symbol {
			return
		}
		account.OnPriceUpdate(price)
	})

	if err := feed.Subscribe([]string{cfg.Market.Symbol}); err != nil {
		// Not fatal: the poller keeps prices flowing over REST.
		log.Error("Failed to subscribe to trade stream", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := pricefeed.NewPoller(
		feed,
		cfg.Market.Symbol,
		time.Duration(cfg.Feed.PollIntervalSec)*time.Second,
		account.OnPriceUpdate,
		log,
	)
	poller.Start(ctx)

	// 5. Init Web Server
	if err := web.InitTemplates(cfg.TemplatesDir); err != nil {
		log.Fatal("Failed to initialize templates", zap.Error(err))
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}

	server := web.NewServer(port, account, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 6. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	feed.Close()
}
