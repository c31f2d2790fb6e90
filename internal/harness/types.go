package harness

import "github.com/roach88/pagefeed/internal/feed"

// Trace event types.
const (
	EventAppend  = "append"
	EventAssign  = "assign"
	EventRestart = "restart"
)

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`

	// Entities lists the appended content ids (append).
	Entities []string `json:"entities,omitempty"`

	// Assigned is the number of entities the run attached (assign).
	Assigned int `json:"assigned,omitempty"`

	// Crashed is set when an injected crash fired during the run (assign).
	Crashed bool `json:"crashed,omitempty"`
}

// EntitySnapshot is one entity as stored at the end of a scenario.
type EntitySnapshot struct {
	ContentID      string `json:"content_id"`
	LastModifiedMs int64  `json:"last_modified_ms"`
	ContentLength  int64  `json:"content_length"`
}

// PageSnapshot is one page with its entities in stored order.
type PageSnapshot struct {
	PageID           string           `json:"page_id"`
	Prev             string           `json:"prev,omitempty"`
	Next             string           `json:"next,omitempty"`
	Generation       int64            `json:"generation"`
	LastModifiedMs   int64            `json:"last_modified_ms"`
	NumberOfBytes    int64            `json:"number_of_bytes"`
	NumberOfEntities int              `json:"number_of_entities"`
	Entities         []EntitySnapshot `json:"entities"`
}

// ChainSnapshot is the deterministic dump compared against golden files.
// Timestamps are millisecond offsets from Epoch.
type ChainSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`

	// ChainOrdered is false when the pages do not form a single chain; Pages
	// are then sorted by id.
	ChainOrdered bool           `json:"chain_ordered"`
	Pages        []PageSnapshot `json:"pages"`

	Unassigned []EntitySnapshot   `json:"unassigned"`
	Journal    *feed.JournalState `json:"journal"`
}

// Layout returns the content ids of each page in snapshot order.
func (s *ChainSnapshot) Layout() [][]string {
	out := make([][]string, 0, len(s.Pages))
	for _, p := range s.Pages {
		ids := make([]string, 0, len(p.Entities))
		for _, e := range p.Entities {
			ids = append(ids, e.ContentID)
		}
		out = append(out, ids)
	}
	return out
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the final state, trace included.
	Snapshot *ChainSnapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
