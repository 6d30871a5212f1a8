package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/bus"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/processor"
)

func TestStatsReporterReport(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	dlq := deadletter.New(8, deadletter.WithLogger(discardLogger()))

	b, err := bus.New(bus.WithLogger(discardLogger()), bus.WithMeter(meter), bus.WithDeadLetterQueue(dlq))
	require.NoError(t, err)
	p, err := processor.New(processor.WithLogger(discardLogger()), processor.WithMeter(meter), processor.WithDeadLetterQueue(dlq))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := NewStatsReporter(b, p, dlq, reader, clock.NewMock(), 0, logger)

	r.Report(context.Background())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "EVENTCORE_STATS", line["msg"])
	assert.Equal(t, "WARN", line["level"], "a bus that is not running is unhealthy")
	assert.Equal(t, "unhealthy", line["health"])
	assert.Contains(t, line, "processor")
	assert.Greater(t, line["exported_instruments"], float64(0), "observable gauges always report")
}

func TestStatsReporterDisabled(t *testing.T) {
	r := NewStatsReporter(nil, nil, nil, nil, clock.NewMock(), 0, discardLogger())
	r.Start()
	r.Stop()
}
