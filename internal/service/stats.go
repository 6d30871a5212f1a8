package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/bus"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/processor"
)

// BusMonitor is the read side of the event bus.
type BusMonitor interface {
	HealthCheck() bus.Health
}

// ProcessorMonitor is the read side of the batching processor.
type ProcessorMonitor interface {
	Metrics() processor.Metrics
}

// StatsReporter periodically logs the state of the pipeline.
type StatsReporter struct {
	bus       BusMonitor
	processor ProcessorMonitor
	dlq       *deadletter.Queue
	reader    *sdkmetric.ManualReader
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStatsReporter(b BusMonitor, p ProcessorMonitor, dlq *deadletter.Queue, reader *sdkmetric.ManualReader,
	clk clock.Clock, interval time.Duration, logger *slog.Logger) *StatsReporter {
	return &StatsReporter{
		bus:       b,
		processor: p,
		dlq:       dlq,
		reader:    reader,
		clock:     clk,
		interval:  interval,
		logger:    logger,
	}
}

// Start launches the reporting loop. A non-positive interval disables it.
func (r *StatsReporter) Start() {
	if r.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Go(func() {
		t := r.clock.Ticker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Report(ctx)
			}
		}
	})
}

func (r *StatsReporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Report logs one snapshot. Degraded or unhealthy pipelines log at warn level.
func (r *StatsReporter) Report(ctx context.Context) {
	health := r.bus.HealthCheck()
	bm := health.Metrics
	pm := r.processor.Metrics()
	dl := r.dlq.Stats()

	level := slog.LevelInfo
	if health.Status != bus.HealthHealthy {
		level = slog.LevelWarn
	}

	r.logger.Log(ctx, level, "EVENTCORE_STATS",
		slog.String("health", string(health.Status)),
		slog.Any("issues", health.Issues),
		slog.Group("bus",
			"published", bm.Published,
			"processed", bm.Processed,
			"failed", bm.Failed,
			"retried", bm.Retried,
			"dead_lettered", bm.DeadLettered,
			"queue_depths", bm.QueueDepths,
		),
		slog.Group("processor",
			"received", pm.Received,
			"processed", pm.Processed,
			"duplicates", pm.Duplicates,
			"active_batches", pm.ActiveBatches,
			"avg_batch_size", pm.AvgBatchSize,
			"inline_fallbacks", pm.InlineFallbacks,
			"pool_event_hit_rate", pm.Pool.Events.HitRate,
		),
		slog.Group("dead_letter",
			"len", dl.Len,
			"total", dl.Total,
			"evicted", dl.Evicted,
		),
		slog.Int("exported_instruments", r.exportedInstruments(ctx)),
	)
}

// exportedInstruments pulls the OTel reader so observable gauges stay fresh
// and reports how many instruments produced data.
func (r *StatsReporter) exportedInstruments(ctx context.Context) int {
	if r.reader == nil {
		return 0
	}
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		r.logger.Debug("METRICS_COLLECT_FAILED", "err", err)
		return 0
	}
	n := 0
	for _, sm := range rm.ScopeMetrics {
		n += len(sm.Metrics)
	}
	return n
}
