package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pagefeed/internal/producer"
)

// Scenario is a crash scenario loaded from YAML.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description is a human-readable explanation of what is exercised.
	Description string `yaml:"description"`

	// Limits configures the producer. All three values must be positive.
	Limits LimitsSpec `yaml:"limits"`

	// Steps run in order against a single database.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// LimitsSpec mirrors producer.Limits in scenario files.
type LimitsSpec struct {
	MaxBytesPerPage    int64 `yaml:"max_bytes_per_page"`
	MaxEntitiesPerPage int   `yaml:"max_entities_per_page"`
	MaxEntitiesPerRun  int   `yaml:"max_entities_per_run"`
}

// Producer converts the scenario limits into producer limits.
func (l LimitsSpec) Producer() producer.Limits {
	return producer.Limits{
		MaxBytesPerPage:    l.MaxBytesPerPage,
		MaxEntitiesPerPage: l.MaxEntitiesPerPage,
		MaxEntitiesPerRun:  l.MaxEntitiesPerRun,
	}
}

// Step is one scenario step. Exactly one field must be set.
type Step struct {
	Append  []EntitySpec `yaml:"append,omitempty"`
	Assign  *AssignStep  `yaml:"assign,omitempty"`
	Restart bool         `yaml:"restart,omitempty"`
}

// EntitySpec describes an entity to append.
type EntitySpec struct {
	ID string `yaml:"id"`

	// At is the timestamp as a millisecond offset from the scenario epoch.
	At int `yaml:"at"`

	// Size is the content length in bytes.
	Size int `yaml:"size"`
}

// AssignStep runs the producer once.
type AssignStep struct {
	// CrashAt arms a crash at the nth repository mutation of this run
	// (1-based). Zero runs without faults.
	CrashAt int `yaml:"crash_at,omitempty"`

	// ExpectAssigned, when set, is the number of entities the run must
	// attach. Ignored for crashing runs.
	ExpectAssigned *int `yaml:"expect_assigned,omitempty"`
}

// Assertion is a check on the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Layout holds content ids per page in chain order (layout).
	Layout [][]string `yaml:"layout,omitempty"`

	// Count is the expected number (page_count, unassigned_count).
	Count int `yaml:"count,omitempty"`

	// Generation is the expected generation (latest_generation).
	Generation int64 `yaml:"generation,omitempty"`
}

// Assertion type constants.
const (
	AssertChainValid       = "chain_valid"
	AssertLayout           = "layout"
	AssertPageCount        = "page_count"
	AssertUnassignedCount  = "unassigned_count"
	AssertJournalEmpty     = "journal_empty"
	AssertJournalPending   = "journal_pending"
	AssertLatestGeneration = "latest_generation"
)

var validAssertionTypes = map[string]bool{
	AssertChainValid:       true,
	AssertLayout:           true,
	AssertPageCount:        true,
	AssertUnassignedCount:  true,
	AssertJournalEmpty:     true,
	AssertJournalPending:   true,
	AssertLatestGeneration: true,
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := s.Limits.Producer().Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := map[string]bool{}
	for i, step := range s.Steps {
		set := 0
		if len(step.Append) > 0 {
			set++
		}
		if step.Assign != nil {
			set++
		}
		if step.Restart {
			set++
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of append, assign, restart is required", i)
		}

		for j, e := range step.Append {
			if e.ID == "" {
				return fmt.Errorf("steps[%d].append[%d]: id is required", i, j)
			}
			if seen[e.ID] {
				return fmt.Errorf("steps[%d].append[%d]: duplicate id %q", i, j, e.ID)
			}
			seen[e.ID] = true
			if e.At < 0 || e.Size < 0 {
				return fmt.Errorf("steps[%d].append[%d]: at and size must not be negative", i, j)
			}
		}
		if step.Assign != nil && step.Assign.CrashAt < 0 {
			return fmt.Errorf("steps[%d].assign: crash_at must not be negative", i)
		}
	}

	for i, a := range s.Assertions {
		if !validAssertionTypes[a.Type] {
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
