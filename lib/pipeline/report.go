package pipeline

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/phil-mansfield/snaparc/lib/finalize"
	"github.com/phil-mansfield/snaparc/lib/policy"
	"github.com/phil-mansfield/snaparc/lib/stream"
)

// Report summarizes a finished job.
type Report struct {
	Destination string
	Shards      int
	InputBytes  int64
	OutputBytes int64
	// Ratio is InputBytes / OutputBytes.
	Ratio    float64
	Duration time.Duration
	// MBps is the rate at which input was consumed, in MB/s.
	MBps float64
	Plan *policy.Plan
	// ChunkRatioMean and ChunkRatioStd describe the spread of per-chunk
	// compression ratios.
	ChunkRatioMean, ChunkRatioStd float64
}

func newReport(
	res *finalize.Result, plan *policy.Plan, shards int,
	stats *stream.Stats, dt time.Duration,
) *Report {
	rep := &Report{
		Destination: res.Path,
		Shards:      shards,
		InputBytes:  res.InputBytes,
		OutputBytes: res.OutputBytes,
		Ratio:       res.Ratio(),
		Duration:    dt,
		Plan:        plan,
	}
	if s := dt.Seconds(); s > 0 {
		rep.MBps = float64(res.InputBytes) / 1e6 / s
	}
	rep.ChunkRatioMean, rep.ChunkRatioStd = stats.RatioSummary()
	return rep
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: %s shards, %s -> %s (factor %.2f, chunks "+
		"%.2f +/- %.2f) in %s (%.1f MB/s)",
		r.Destination, humanize.Comma(int64(r.Shards)),
		humanize.Bytes(uint64(r.InputBytes)),
		humanize.Bytes(uint64(r.OutputBytes)),
		r.Ratio, r.ChunkRatioMean, r.ChunkRatioStd,
		r.Duration.Round(time.Millisecond), r.MBps,
	)
}
