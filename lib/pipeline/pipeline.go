/*package pipeline runs one transcoding job: it turns a group of source
shards into a single finalized archive. A job is strictly sequential:

   open shards -> merge headers -> resolve codecs -> stream -> finalize

Nothing is written until the headers have been validated and the codec
policy has been resolved, and any failure after that point leaves at most an
in-progress file, never a file under the destination name. Independent jobs
can be run in separate processes over disjoint shard groups.
*/
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/phil-mansfield/snaparc/lib/archive"
	"github.com/phil-mansfield/snaparc/lib/compress"
	"github.com/phil-mansfield/snaparc/lib/finalize"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/policy"
	"github.com/phil-mansfield/snaparc/lib/snapio"
	"github.com/phil-mansfield/snaparc/lib/stream"
)

const (
	// CompressionInfoGroup holds the resolved compression plan.
	CompressionInfoGroup = "CompressionInfo"
	// CompressionInfoAttr is the name of the JSON attribute in
	// CompressionInfoGroup.
	CompressionInfoAttr = "json"
)

// Job is one output unit: an ordered group of shards and a destination.
type Job struct {
	Sources     []string
	Destination string
	Pos, Vel    policy.Request
	Sort        bool
}

// Options holds everything that is shared between jobs.
type Options struct {
	// Registry defaults to compress.NewRegistry().
	Registry *compress.Registry
	// Table defaults to policy.DefaultTable().
	Table *policy.Table
	// Rules defaults to header.DefaultRules().
	Rules *header.Rules
	// Lockdown leaves the destination directory read-only.
	Lockdown bool
	// Verify re-reads every chunk before the archive is committed.
	Verify bool
	// Logger defaults to a logger which discards everything.
	Logger *slog.Logger
	// MeterProvider defaults to otel's global provider.
	MeterProvider metric.MeterProvider
}

func (opts *Options) setDefaults() {
	if opts.Registry == nil {
		opts.Registry = compress.NewRegistry()
	}
	if opts.Table == nil {
		opts.Table = policy.DefaultTable()
	}
	if opts.Rules == nil {
		rules := header.DefaultRules()
		opts.Rules = &rules
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Run executes a job and returns a report on success.
func Run(ctx context.Context, job Job, opts Options) (*Report, error) {
	start := time.Now()
	opts.setDefaults()
	log := opts.Logger.With("destination", job.Destination)
	m := newMetrics(opts.MeterProvider)

	if len(job.Sources) == 0 {
		return nil, fmt.Errorf("The job for %s has no source shards.",
			job.Destination)
	} else if job.Destination == "" {
		return nil, fmt.Errorf("The job has no destination.")
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, err
	}
	if err := finalize.CheckPaths(job.Destination, job.Sources); err != nil {
		return nil, err
	}

	readers, err := openShards(job.Sources, opts.Registry)
	if err != nil {
		return nil, err
	}
	defer closeShards(readers)

	canon, err := mergeHeaders(readers, *opts.Rules)
	if err != nil {
		return nil, err
	}
	n1d := policy.N1D(canon.Total(1))
	plan, err := opts.Table.Resolve(canon.BoxSize, n1d, job.Pos, job.Vel)
	if err != nil {
		return nil, err
	}
	plan.Sort = job.Sort
	planJSON, err := plan.JSON()
	if err != nil {
		return nil, err
	}
	log.Info("resolved compression plan", "shards", len(readers),
		"box", canon.BoxSize, "n1d", n1d, "plan", planJSON)

	pending, err := finalize.Begin(job.Destination, job.Sources,
		finalize.Options{Lockdown: opts.Lockdown, Logger: log})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			pending.Abort()
		}
	}()

	aw, err := archive.NewWriter(pending.File(), opts.Registry)
	if err != nil {
		return nil, err
	}
	aw.SetAttrs(snapio.HeaderGroup, canon.Attributes()...)
	aw.SetAttrs(CompressionInfoGroup,
		archive.StringAttr(CompressionInfoAttr, planJSON))

	w := stream.New(plan, canon, job.Sort, log)
	for _, species := range opts.Rules.Species {
		if err := w.WriteSpecies(ctx, aw, readers, species); err != nil {
			return nil, err
		}
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}

	if opts.Verify {
		if err := verify(pending.Path(), opts.Registry); err != nil {
			return nil, err
		}
		log.Debug("verified archive", "path", pending.Path())
	}

	res, err := pending.Commit(w.Stats.BytesRead)
	if err != nil {
		return nil, err
	}
	committed = true

	rep := newReport(res, plan, len(readers), &w.Stats, time.Since(start))
	m.record(ctx, rep)
	log.Info("wrote archive", "input", rep.InputBytes,
		"output", rep.OutputBytes, "ratio", rep.Ratio,
		"seconds", rep.Duration.Seconds())
	return rep, nil
}

func openShards(paths []string, reg *compress.Registry) ([]snapio.Reader, error) {
	readers := make([]snapio.Reader, 0, len(paths))
	for _, path := range paths {
		rd, err := snapio.Open(path, reg)
		if err != nil {
			closeShards(readers)
			return nil, err
		}
		readers = append(readers, rd)
	}
	return readers, nil
}

func closeShards(readers []snapio.Reader) {
	for _, rd := range readers {
		rd.Close()
	}
}

func mergeHeaders(readers []snapio.Reader, rules header.Rules) (*header.Canonical, error) {
	hds := make([]*header.RawHeader, len(readers))
	for i, rd := range readers {
		hd, err := rd.Header()
		if err != nil {
			return nil, err
		}
		hds[i] = hd
	}
	return header.Merge(rules, hds)
}

func verify(path string, reg *compress.Registry) error {
	rd, err := archive.Open(path, reg)
	if err != nil {
		return err
	}
	defer rd.Close()
	return rd.Verify()
}
