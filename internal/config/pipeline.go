// Package config defines the pipeline configuration for the stop cleaning
// job, its built-in defaults, and loading from JSON or YAML files.
//
// The job is meant to run without any configuration: Default reproduces the
// fixed source URL and output path. A config file only overrides operational
// details (sinks, logging, worker counts).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults for the fixed source and output.
const (
	DefaultJob        = "clean_stops"
	DefaultSourceURL  = "http://seshat.datasd.org/pd/vehicle_stops_2016_datasd.csv"
	DefaultOutputPath = "data/cleaned_stops.csv"
	DefaultBatchSize  = 1024
	DefaultBuffer     = 256
)

// Source kinds.
const (
	SourceHTTP = "http"
	SourceFile = "file"
	SourcePage = "page"
)

// Pipeline is the full job configuration.
type Pipeline struct {
	Job     string        `json:"job" yaml:"job"`
	Source  Source        `json:"source" yaml:"source"`
	Parser  Parser        `json:"parser" yaml:"parser"`
	Output  Output        `json:"output" yaml:"output"`
	Storage []Storage     `json:"storage,omitempty" yaml:"storage,omitempty"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Logging Logging       `json:"logging" yaml:"logging"`
}

// Source describes where the raw CSV comes from.
type Source struct {
	// Kind is "http", "file" or "page".
	Kind string `json:"kind" yaml:"kind"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// LinkSelector picks the CSV anchor on a dataset landing page
	// (kind "page"). Defaults to the first link ending in .csv.
	LinkSelector string `json:"link_selector,omitempty" yaml:"link_selector,omitempty"`

	// Encoding names the source charset (e.g. "windows-1252"). Empty or
	// "utf-8" reads bytes as-is.
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`

	// TimeoutSec bounds HTTP requests. 0 means no client timeout.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// Parser selects and tunes the input parser. Only "csv" is supported.
type Parser struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Output is the cleaned CSV destination.
type Output struct {
	Path string `json:"path" yaml:"path"`
}

// Storage is an additional sink for the cleaned table.
type Storage struct {
	// Kind is a registered storage backend: "csv", "sqlite", "postgres", "mssql".
	Kind string `json:"kind" yaml:"kind"`
	// DSN is expanded with os.ExpandEnv before use.
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// RuntimeConfig controls execution behavior.
type RuntimeConfig struct {
	CleanWorkers  int `json:"clean_workers" yaml:"clean_workers"`
	BatchSize     int `json:"batch_size" yaml:"batch_size"`
	ChannelBuffer int `json:"channel_buffer" yaml:"channel_buffer"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when the job runs without a file.
func Default() Pipeline {
	return Pipeline{
		Job: DefaultJob,
		Source: Source{
			Kind:       SourceHTTP,
			URL:        DefaultSourceURL,
			TimeoutSec: 300,
		},
		Parser: Parser{Kind: "csv", Options: Options{}},
		Output: Output{Path: DefaultOutputPath},
		Runtime: RuntimeConfig{
			CleanWorkers:  1,
			BatchSize:     DefaultBatchSize,
			ChannelBuffer: DefaultBuffer,
		},
		Logging: Logging{Level: "info", Format: "console"},
	}
}

// Load reads a config file on top of Default. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON. Fields absent from the file
// keep their defaults.
func Load(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes raw config bytes. ext selects the format (".yaml", ".yml" or
// anything else for JSON).
func Parse(raw []byte, ext string) (Pipeline, error) {
	p := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Pipeline{}, fmt.Errorf("parse config: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("parse config: %w", err)
		}
	}
	p.applyDefaults()
	return p, nil
}

func (p *Pipeline) applyDefaults() {
	if p.Job == "" {
		p.Job = DefaultJob
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = DefaultBatchSize
	}
	if p.Runtime.ChannelBuffer <= 0 {
		p.Runtime.ChannelBuffer = DefaultBuffer
	}
	if p.Runtime.CleanWorkers <= 0 {
		p.Runtime.CleanWorkers = 1
	}
}
