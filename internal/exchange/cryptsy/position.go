package cryptsy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kingsmao/exchange-gateway/internal/metrics"
	"github.com/kingsmao/exchange-gateway/pkg/event"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// PositionSync polls balances and publishes one Position per resolvable currency.
type PositionSync struct {
	rest       interfaces.RESTClient
	directory  *CurrencyDirectory
	currencies []schema.Currency
	interval   time.Duration

	positions *event.Topic[schema.Position]
}

func NewPositionSync(rest interfaces.RESTClient, dir *CurrencyDirectory, currencies []schema.Currency, interval time.Duration) *PositionSync {
	if interval <= 0 {
		interval = defaultPositionInterval
	}
	return &PositionSync{
		rest:       rest,
		directory:  dir,
		currencies: append([]schema.Currency(nil), currencies...),
		interval:   interval,
		positions:  event.NewTopic[schema.Position](),
	}
}

func (p *PositionSync) Name() string { return "cryptsy-positions" }

func (p *PositionSync) PositionUpdate() *event.Topic[schema.Position] { return p.positions }

// Start runs the poll ticker until ctx is done.
func (p *PositionSync) Start(ctx context.Context) error {
	logger.Info("Cryptsy 持仓轮询启动，间隔 %s", p.interval)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Cryptsy 持仓轮询退出")
				return
			case <-ticker.C:
				if err := p.Poll(ctx); err != nil {
					metrics.PollFailures.WithLabelValues("positions").Inc()
					logger.Warn("Cryptsy 持仓轮询失败: %v", err)
				}
			}
		}
	}()
	return nil
}

// Poll runs one tick: refresh the mapping, fetch balances, publish positions.
// Any failure aborts the whole tick before anything is published.
func (p *PositionSync) Poll(ctx context.Context) error {
	mapping, err := p.directory.Refresh(ctx)
	if err != nil {
		return err
	}
	balances, err := p.rest.GetBalances(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, cur := range p.currencies {
		id, ok := mapping.IDFor(cur)
		if !ok {
			continue
		}
		pos := schema.Position{
			Exchange:   schema.CRYPTSY,
			Currency:   cur,
			HeldAmount: decimal.Zero,
			Time:       now,
		}
		if amt, found := balances.Available[id]; found {
			pos.Amount = decimal.NewNullDecimal(amt)
		}
		metrics.PositionEvents.WithLabelValues(string(cur)).Inc()
		p.positions.Publish(pos)
	}
	return nil
}
