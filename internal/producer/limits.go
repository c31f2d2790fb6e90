package producer

import (
	"fmt"
	"strings"

	"github.com/roach88/pagefeed/internal/feed"
)

// Default producer limits.
const (
	DefaultMaxBytesPerPage    int64 = 1 << 20
	DefaultMaxEntitiesPerPage       = 1000
	DefaultMaxEntitiesPerRun        = 10000
)

// Limits bounds page sizes and the amount of work per run.
type Limits struct {
	MaxBytesPerPage    int64 `json:"max_bytes_per_page" yaml:"max_bytes_per_page"`
	MaxEntitiesPerPage int   `json:"max_entities_per_page" yaml:"max_entities_per_page"`
	MaxEntitiesPerRun  int   `json:"max_entities_per_run" yaml:"max_entities_per_run"`
}

// DefaultLimits returns the default producer limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytesPerPage:    DefaultMaxBytesPerPage,
		MaxEntitiesPerPage: DefaultMaxEntitiesPerPage,
		MaxEntitiesPerRun:  DefaultMaxEntitiesPerRun,
	}
}

// Bounds returns the per-page bounds for chain verification.
func (l Limits) Bounds() feed.PageBounds {
	return feed.PageBounds{MaxBytes: l.MaxBytesPerPage, MaxEntities: l.MaxEntitiesPerPage}
}

// LimitsError reports non-positive limits.
type LimitsError struct {
	Fields []string
}

func (e *LimitsError) Error() string {
	return fmt.Sprintf("invalid producer limits: %s must be positive", strings.Join(e.Fields, ", "))
}

// Validate returns a *LimitsError unless every limit is positive.
func (l Limits) Validate() error {
	var fields []string
	if l.MaxBytesPerPage <= 0 {
		fields = append(fields, "max_bytes_per_page")
	}
	if l.MaxEntitiesPerPage <= 0 {
		fields = append(fields, "max_entities_per_page")
	}
	if l.MaxEntitiesPerRun <= 0 {
		fields = append(fields, "max_entities_per_run")
	}
	if len(fields) > 0 {
		return &LimitsError{Fields: fields}
	}
	return nil
}
