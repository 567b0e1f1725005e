package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "snaparc"

type metrics struct {
	bytesRead    metric.Int64Counter
	bytesWritten metric.Int64Counter
	jobs         metric.Int64Counter
	duration     metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &metrics{}
	m.bytesRead, _ = meter.Int64Counter("snaparc.bytes.read",
		metric.WithUnit("By"),
		metric.WithDescription("Decoded bytes read from source shards"),
	)
	m.bytesWritten, _ = meter.Int64Counter("snaparc.bytes.written",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes of finalized archives"),
	)
	m.jobs, _ = meter.Int64Counter("snaparc.jobs",
		metric.WithUnit("{job}"),
		metric.WithDescription("Number of finalized archives"),
	)
	m.duration, _ = meter.Float64Histogram("snaparc.job.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock duration of transcoding jobs"),
	)
	return m
}

func (m *metrics) record(ctx context.Context, rep *Report) {
	attrs := metric.WithAttributes(
		attribute.Bool("snaparc.sort", rep.Plan.Sort),
		attribute.Int("snaparc.n1d", rep.Plan.N1D),
	)
	if m.bytesRead != nil {
		m.bytesRead.Add(ctx, rep.InputBytes, attrs)
	}
	if m.bytesWritten != nil {
		m.bytesWritten.Add(ctx, rep.OutputBytes, attrs)
	}
	if m.jobs != nil {
		m.jobs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, rep.Duration.Seconds(), attrs)
	}
}
