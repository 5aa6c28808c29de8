package config

import (
	"errors"
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted config path such as
// "storage[1].dsn".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Validation errors.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMissingSourceURL  = errors.New("source.url is required")
	ErrMissingSourcePath = errors.New("source.path is required")
	ErrUnknownSourceKind = errors.New("source.kind must be one of: http, file, page")
	ErrUnsupportedParser = errors.New("parser.kind must be csv")
	ErrMissingOutputPath = errors.New("output.path is required")
	ErrMissingStorageDSN = errors.New("dsn is required")
	ErrInvalidLogLevel   = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat  = errors.New("logging.format must be one of: console, json")
)

var validLogLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// ValidatePipeline checks p and returns all issues found. An empty result
// means the config is usable.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	errorf := func(path string, err error) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: err.Error()})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	switch p.Source.Kind {
	case SourceHTTP, SourcePage:
		if strings.TrimSpace(p.Source.URL) == "" {
			errorf("source.url", ErrMissingSourceURL)
		}
	case SourceFile:
		if strings.TrimSpace(p.Source.Path) == "" {
			errorf("source.path", ErrMissingSourcePath)
		}
	default:
		errorf("source.kind", ErrUnknownSourceKind)
	}
	if p.Source.LinkSelector != "" && p.Source.Kind != SourcePage {
		warnf("source.link_selector", "ignored for source.kind=%s", p.Source.Kind)
	}

	if p.Parser.Kind != "csv" {
		errorf("parser.kind", ErrUnsupportedParser)
	}
	if p.Parser.Options.Bool("trim_space", false) {
		warnf("parser.options.trim_space", "trimming changes passthrough column values")
	}

	if strings.TrimSpace(p.Output.Path) == "" {
		errorf("output.path", ErrMissingOutputPath)
	}

	for i, s := range p.Storage {
		path := fmt.Sprintf("storage[%d]", i)
		if strings.TrimSpace(s.Kind) == "" {
			errorf(path+".kind", errors.New("kind is required"))
		}
		if strings.TrimSpace(s.DSN) == "" {
			errorf(path+".dsn", ErrMissingStorageDSN)
		}
	}

	if !validLogLevels[strings.ToLower(p.Logging.Level)] {
		errorf("logging.level", ErrInvalidLogLevel)
	}
	switch strings.ToLower(p.Logging.Format) {
	case "", "console", "json":
	default:
		errorf("logging.format", ErrInvalidLogFormat)
	}

	return issues
}

// Err folds validation issues into a single error, or nil when none of them
// is an error.
func Err(issues []Issue) error {
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
