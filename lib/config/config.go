// Package config loads snaparc job files.
//
// A job file is YAML and describes one output unit: where its source shards
// are, where the archive goes, and how precision should be traded for size.
// Command line flags override the values in the file.
//
//	sources: "snapdir_{%03d,snapshot}/snap_{%03d,snapshot}.{%d,0..7}"
//	destination: "out/snapdir_{%03d,snapshot}/snap_{%03d,snapshot}.arc"
//	snapshot: 63
//	truncpos: auto
//	truncvel: 11
//	sort: false
//	policy_table: tables/suite.yaml
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/phil-mansfield/snaparc/lib/format"
	"github.com/phil-mansfield/snaparc/lib/header"
	"github.com/phil-mansfield/snaparc/lib/pipeline"
	"github.com/phil-mansfield/snaparc/lib/policy"
)

// Job is the contents of a job file.
type Job struct {
	// Sources is either a list of shard paths or a single file format
	// string (see package format) which expands to them.
	Sources SourceList `yaml:"sources"`

	// Destination is the archive path. It may be a file format string which
	// names exactly one file.
	Destination string `yaml:"destination"`

	// Snapshot is the value of "snapshot" variables in Sources and
	// Destination.
	Snapshot int `yaml:"snapshot"`

	// TruncPos and TruncVel are "auto" or a number of bits. Both default to
	// "auto".
	TruncPos policy.Request `yaml:"truncpos"`
	TruncVel policy.Request `yaml:"truncvel"`

	// Sort reorders every field by ascending particle ID.
	Sort bool `yaml:"sort"`

	// Lockdown leaves the destination directory read-only afterwards.
	Lockdown bool `yaml:"lockdown"`

	// Verify re-reads the archive's checksums before it is committed.
	Verify bool `yaml:"verify"`

	// PolicyTable is the path of a YAML precision table. The built-in
	// table is used if it is empty.
	PolicyTable string `yaml:"policy_table,omitempty"`

	// Rules overrides the header rules of the built-in simulation suites.
	Rules *header.Rules `yaml:"rules,omitempty"`
}

// SourceList accepts either a YAML sequence of paths or a single format
// string.
type SourceList []string

func (s *SourceList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = SourceList{node.Value}
		return nil
	case yaml.SequenceNode:
		var paths []string
		if err := node.Decode(&paths); err != nil {
			return err
		}
		*s = paths
		return nil
	}
	return fmt.Errorf("line %d: sources must be a string or a list of "+
		"strings", node.Line)
}

// Default returns a job with every default filled in.
func Default() *Job {
	return &Job{TruncPos: policy.Auto(), TruncVel: policy.Auto()}
}

// Parse reads a job file. Unknown keys are errors.
func Parse(rd io.Reader) (*Job, error) {
	job := Default()
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(job); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("Could not parse the job file: %w", err)
	}
	return job, nil
}

// Load reads a job file from disk.
func Load(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("The job file %s cannot be opened: %w",
			path, err)
	}
	defer f.Close()
	job, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// Paths expands Sources and Destination.
func (j *Job) Paths() (sources []string, dst string, err error) {
	if len(j.Sources) == 0 {
		return nil, "", fmt.Errorf("The job has no sources.")
	}
	for _, src := range j.Sources {
		paths, err := format.ExpandFileFormat(src, j.Snapshot)
		if err != nil {
			return nil, "", err
		}
		sources = append(sources, paths...)
	}

	if j.Destination == "" {
		return nil, "", fmt.Errorf("The job has no destination.")
	}
	dst, err = format.ExpandSingleFileFormat(j.Destination, j.Snapshot)
	if err != nil {
		return nil, "", err
	}
	return sources, dst, nil
}

// Pipeline returns the job in the form pipeline.Run accepts.
func (j *Job) Pipeline() (pipeline.Job, error) {
	sources, dst, err := j.Paths()
	if err != nil {
		return pipeline.Job{}, err
	}
	return pipeline.Job{
		Sources:     sources,
		Destination: dst,
		Pos:         j.TruncPos,
		Vel:         j.TruncVel,
		Sort:        j.Sort,
	}, nil
}

// Options returns the pipeline options the job asks for. The caller fills
// in logging and metrics.
func (j *Job) Options() (pipeline.Options, error) {
	opts := pipeline.Options{
		Lockdown: j.Lockdown,
		Verify:   j.Verify,
		Rules:    j.Rules,
	}
	if j.Rules != nil {
		if err := j.Rules.Validate(); err != nil {
			return pipeline.Options{}, err
		}
	}
	if j.PolicyTable != "" {
		t, err := policy.LoadTableFile(j.PolicyTable)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.Table = t
	}
	return opts, nil
}
