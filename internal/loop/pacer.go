package loop

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultRefreshRate approximates a typical display refresh.
const DefaultRefreshRate = 60.0

// Pacer is the external pacing source iterations are synchronized to.
type Pacer interface {
	// Wait blocks until the next tick.
	Wait(ctx context.Context) error
}

// TickerPacer ticks at a fixed rate. Missed ticks are coalesced: a slow
// iteration resumes on the next tick instead of replaying the backlog.
type TickerPacer struct {
	ticker   *clock.Ticker
	interval time.Duration
}

// NewTickerPacer ticks hz times per second on clk. A nil clock uses wall time.
func NewTickerPacer(clk clock.Clock, hz float64) *TickerPacer {
	if clk == nil {
		clk = clock.New()
	}
	if hz <= 0 {
		hz = DefaultRefreshRate
	}
	interval := time.Duration(float64(time.Second) / hz)
	return &TickerPacer{ticker: clk.Ticker(interval), interval: interval}
}

func (p *TickerPacer) Wait(ctx context.Context) error {
	select {
	case <-p.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *TickerPacer) Interval() time.Duration {
	return p.interval
}

func (p *TickerPacer) Stop() {
	p.ticker.Stop()
}
