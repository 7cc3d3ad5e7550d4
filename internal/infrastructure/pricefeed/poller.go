package pricefeed

import (
	"context"
	"time"

	"github.com/dkovalev/papertrade/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultPollInterval is used when the configured interval is missing or
// non-positive.
const DefaultPollInterval = 30 * time.Second

// Poller keeps a reference price flowing even when the trade stream is quiet
// or down: it fetches the last price over REST on a fixed interval and hands
// it to the handler.
type Poller struct {
	source   domain.PriceSource
	symbol   string
	interval time.Duration
	handler  func(price decimal.Decimal)
	logger   *zap.Logger
}

func NewPoller(source domain.PriceSource, symbol string, interval time.Duration, handler func(price decimal.Decimal), logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:   source,
		symbol:   symbol,
		interval: interval,
		handler:  handler,
		logger:   logger,
	}
}

func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting price poller",
		zap.String("symbol", p.symbol),
		zap.Duration("interval", p.interval),
	)
	ticker := time.NewTicker(p.interval)

	// Fetch immediately so the account is markable right after startup.
	go p.poll(ctx)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

func (p *Poller) poll(ctx context.Context) {
	price, err := p.source.CurrentPrice(ctx, p.symbol)
	if err != nil {
		p.logger.Warn("Price poll failed", zap.String("symbol", p.symbol), zap.Error(err))
		return
	}
	p.handler(price)
}
