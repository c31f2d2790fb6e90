// Package config loads pagefeed configuration from YAML and validates it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pagefeed/internal/producer"
)

//go:embed schema.cue
var schemaSource string

// Defaults.
const (
	DefaultDatabase       = "pagefeed.db"
	DefaultAssignInterval = 5 * time.Second
)

// Config is the full pagefeed configuration.
type Config struct {
	Database string          `json:"database" yaml:"database"`
	Producer producer.Limits `json:"producer" yaml:"producer"`
	Assign   AssignConfig    `json:"assign" yaml:"assign"`
	Metrics  MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// AssignConfig controls continuous assign mode.
type AssignConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DefaultDatabase,
		Producer: producer.DefaultLimits(),
		Assign:   AssignConfig{Interval: DefaultAssignInterval},
	}
}

// Problem is one schema violation.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every schema violation found in a configuration.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Message)
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path yields the defaults. Unknown keys are rejected. The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks c against the embedded schema and returns a
// *ValidationError describing every violation.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(c))
	err := value.Validate(cue.Concrete(true), cue.All())
	if err == nil {
		return nil
	}
	return toValidationError(err)
}

func toValidationError(err error) *ValidationError {
	ve := &ValidationError{}
	for _, e := range cueerrors.Errors(err) {
		ve.Problems = append(ve.Problems, Problem{
			Path:    strings.Join(e.Path(), "."),
			Message: e.Error(),
		})
	}
	if len(ve.Problems) == 0 {
		ve.Problems = append(ve.Problems, Problem{Message: err.Error()})
	}
	return ve
}
