package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ljo9000/skupi/internal/config"
	"github.com/Ljo9000/skupi/internal/service"
)

// DeadlineSweeper periodically settles events whose payment deadline passed.
// It can run alongside the HTTP sweep endpoint and alongside other replicas;
// every settlement step is a conditional update, so overlap is harmless.
type DeadlineSweeper struct {
	settlement *service.SettlementService
	interval   time.Duration
	batch      int
	ticker     *time.Ticker
	done       chan bool
}

func NewDeadlineSweeper(settlement *service.SettlementService, cfg config.SweeperConfig) *DeadlineSweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := cfg.Batch
	if batch <= 0 {
		batch = 50
	}
	return &DeadlineSweeper{
		settlement: settlement,
		interval:   interval,
		batch:      batch,
		done:       make(chan bool),
	}
}

// Start begins the background loop, running one sweep immediately
func (j *DeadlineSweeper) Start() {
	slog.Info("Starting deadline sweeper", "interval", j.interval, "batch", j.batch)

	j.ticker = time.NewTicker(j.interval)

	go j.sweep()

	go func() {
		for {
			select {
			case <-j.ticker.C:
				j.sweep()
			case <-j.done:
				slog.Info("Deadline sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the background loop
func (j *DeadlineSweeper) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

func (j *DeadlineSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	result, err := j.settlement.SweepDeadlines(ctx, j.batch)
	if err != nil {
		slog.Error("Deadline sweep failed", "error", err)
		return
	}

	if result.Captured > 0 || result.Cancelled > 0 || result.Failed > 0 {
		slog.Info("Deadline sweep completed",
			"captured", result.Captured,
			"cancelled", result.Cancelled,
			"failed", result.Failed)
	}
}
