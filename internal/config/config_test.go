package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	p := Default()
	if issues := ValidatePipeline(p); len(issues) != 0 {
		t.Fatalf("default config has issues: %v", issues)
	}
	if p.Source.URL != DefaultSourceURL || p.Output.Path != DefaultOutputPath {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestParse_JSONOverridesDefaults(t *testing.T) {
	raw := []byte(`{
		"source": {"kind": "file", "path": "stops.csv"},
		"storage": [{"kind": "sqlite", "dsn": "file:stops.db", "table": "stops"}],
		"runtime": {"clean_workers": 4}
	}`)
	p, err := Parse(raw, ".json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Source.Kind != SourceFile || p.Source.Path != "stops.csv" {
		t.Fatalf("source=%+v", p.Source)
	}
	if p.Output.Path != DefaultOutputPath {
		t.Fatalf("output.path=%q, want default", p.Output.Path)
	}
	if p.Runtime.CleanWorkers != 4 || p.Runtime.BatchSize != DefaultBatchSize {
		t.Fatalf("runtime=%+v", p.Runtime)
	}
	if len(p.Storage) != 1 || p.Storage[0].Table != "stops" {
		t.Fatalf("storage=%+v", p.Storage)
	}
}

func TestParse_JSONRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte(`{"sorce": {}}`), ".json"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	body := `
job: nightly
source:
  kind: page
  url: https://data.sandiego.gov/datasets/police-vehicle-stops/
  link_selector: a.resource-url
parser:
  kind: csv
  options:
    comma: ";"
    lazy_quotes: true
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "nightly" || p.Source.Kind != SourcePage || p.Source.LinkSelector != "a.resource-url" {
		t.Fatalf("unexpected pipeline: %+v", p)
	}
	if got := p.Parser.Options.Rune("comma", ','); got != ';' {
		t.Fatalf("comma=%q", got)
	}
	if !p.Parser.Options.Bool("lazy_quotes", false) {
		t.Fatalf("lazy_quotes not decoded")
	}
	if issues := ValidatePipeline(p); len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidatePipeline_ReportsAllErrors(t *testing.T) {
	p := Default()
	p.Source = Source{Kind: "ftp"}
	p.Parser.Kind = "json"
	p.Output.Path = " "
	p.Storage = []Storage{{Kind: "postgres"}}
	p.Logging = Logging{Level: "loud", Format: "xml"}

	issues := ValidatePipeline(p)
	paths := map[string]bool{}
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			paths[iss.Path] = true
		}
	}
	for _, want := range []string{"source.kind", "parser.kind", "output.path", "storage[0].dsn", "logging.level", "logging.format"} {
		if !paths[want] {
			t.Fatalf("missing error for %s; got %v", want, issues)
		}
	}

	err := Err(issues)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Err=%v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "source.kind") {
		t.Fatalf("Err message=%q", err)
	}
}

func TestValidatePipeline_WarningsAreNotErrors(t *testing.T) {
	p := Default()
	p.Source.LinkSelector = "a"
	p.Parser.Options = Options{"trim_space": true}

	issues := ValidatePipeline(p)
	if len(issues) != 2 {
		t.Fatalf("issues=%v, want 2 warnings", issues)
	}
	if err := Err(issues); err != nil {
		t.Fatalf("warnings must not fail: %v", err)
	}
}

func TestOptions_Getters(t *testing.T) {
	o := Options{
		"n":      float64(7),
		"s":      "12",
		"b":      "true",
		"tab":    `\t`,
		"header": map[string]any{"Stop ID": "stop_id", "n": 1},
	}
	if o.Int("n", 0) != 7 || o.Int("s", 0) != 12 || o.Int("missing", 3) != 3 {
		t.Fatalf("Int getters wrong")
	}
	if !o.Bool("b", false) || o.Bool("missing", false) {
		t.Fatalf("Bool getters wrong")
	}
	if o.Rune("tab", ',') != '\t' || o.Rune("missing", ',') != ',' {
		t.Fatalf("Rune getters wrong")
	}
	m := o.StringMap("header")
	if m["Stop ID"] != "stop_id" || m["n"] != "1" {
		t.Fatalf("StringMap=%v", m)
	}
	if o.String("missing", "d") != "d" || o.String("n", "") != "7" {
		t.Fatalf("String getters wrong")
	}
	var nilOpts Options
	if nilOpts.Any("x") != nil {
		t.Fatalf("nil options must return nil")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("STOPS_TEST_DSN=file:x.db\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STOPS_TEST_DSN", "")
	os.Unsetenv("STOPS_TEST_DSN")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("STOPS_TEST_DSN"); got != "file:x.db" {
		t.Fatalf("STOPS_TEST_DSN=%q", got)
	}
}

func TestLoad_ExampleConfigIsValid(t *testing.T) {
	p, err := Load(filepath.Join("..", "..", "configs", "clean_stops.example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Err(ValidatePipeline(p)); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if p.Source.URL != DefaultSourceURL || p.Output.Path != DefaultOutputPath {
		t.Fatalf("example config drifted from defaults: source=%q output=%q", p.Source.URL, p.Output.Path)
	}
	if len(p.Storage) != 1 || p.Storage[0].Kind != "sqlite" {
		t.Fatalf("storage=%+v, want one sqlite sink", p.Storage)
	}
}
