// snaparc transcodes a group of Gadget-2 snapshot shards into a single
// compressed, chunked archive.
//
// Usage:
//
//	snaparc [flags] SRC... DST
//	snaparc --config job.yaml [flags]
//
// Positions and velocities can be truncated before compression. "auto"
// picks the number of bits from the precision policy table using the box
// size and resolution of the simulation.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/phil-mansfield/snaparc/lib/config"
	g_error "github.com/phil-mansfield/snaparc/lib/error"
	"github.com/phil-mansfield/snaparc/lib/pipeline"
	"github.com/phil-mansfield/snaparc/lib/policy"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		g_error.External(nil, "%s", err.Error())
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		truncPos, truncVel string
		sort, verbose      bool
		lockdown, verify   bool
		metrics            bool
		configPath         string
		policyPath         string
	)

	flagSet := pflag.NewFlagSet("snaparc", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&truncPos, "truncpos", "p", "auto", "bits to truncate from positions, or 'auto'")
	flagSet.StringVarP(&truncVel, "truncvel", "v", "auto", "bits to truncate from velocities, or 'auto'")
	flagSet.BoolVarP(&sort, "sort", "s", false, "sort every field by particle ID (holds each species in memory)")
	flagSet.BoolVarP(&verbose, "verbose", "V", false, "log progress and print a report")
	flagSet.StringVar(&configPath, "config", "", "YAML job file")
	flagSet.StringVar(&policyPath, "policy", "", "YAML precision policy table (default: built-in)")
	flagSet.BoolVar(&lockdown, "lockdown", false, "leave the destination directory read-only")
	flagSet.BoolVar(&verify, "verify", false, "check every chunk before committing the archive")
	flagSet.BoolVar(&metrics, "metrics", false, "write job metrics to stderr")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  snaparc [flags] SRC... DST\n"+
			"  snaparc --config job.yaml [flags]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// The job file supplies defaults. Flags that were set explicitly win.
	job := config.Default()
	if configPath != "" {
		var err error
		if job, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if pos := flagSet.Args(); len(pos) > 0 {
		if len(pos) < 2 {
			return fmt.Errorf("Expected at least one source and a " +
				"destination, but only got '%s'.", pos[0])
		}
		job.Sources = pos[:len(pos)-1]
		job.Destination = pos[len(pos)-1]
	}
	if flagSet.Changed("truncpos") || configPath == "" {
		req, err := policy.ParseRequest(truncPos)
		if err != nil {
			return fmt.Errorf("--truncpos: %w", err)
		}
		job.TruncPos = req
	}
	if flagSet.Changed("truncvel") || configPath == "" {
		req, err := policy.ParseRequest(truncVel)
		if err != nil {
			return fmt.Errorf("--truncvel: %w", err)
		}
		job.TruncVel = req
	}
	job.Sort = job.Sort || sort
	job.Lockdown = job.Lockdown || lockdown
	job.Verify = job.Verify || verify
	if policyPath != "" {
		job.PolicyTable = policyPath
	}

	pjob, err := job.Pipeline()
	if err != nil {
		return err
	}
	opts, err := job.Options()
	if err != nil {
		return err
	}
	opts.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metrics {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(stderr))
		if err != nil {
			return err
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		defer mp.Shutdown(context.Background())
		opts.MeterProvider = mp
	}

	rep, err := pipeline.Run(ctx, pjob, opts)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintln(stdout, rep.String())
	}
	return nil
}
