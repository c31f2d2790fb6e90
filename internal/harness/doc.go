// Package harness replays crash scenarios against the page producer.
//
// A scenario appends entities, runs the producer, injects crashes at chosen
// repository mutations and restarts, then checks the resulting chain. Every
// run uses a fresh SQLite database, sequential page ids (p1, p2, ...) and a
// fixed clock, so the final chain is deterministic and can be compared
// against a golden dump.
//
// # Scenario Format
//
//	name: split_crash
//	description: "Crash while linking the previous latest page"
//	limits:
//	  max_bytes_per_page: 10
//	  max_entities_per_page: 3
//	  max_entities_per_run: 100
//	steps:
//	  - append:
//	      - { id: a, at: 1, size: 4 }
//	  - assign: { expect_assigned: 1 }
//	  - assign: { crash_at: 4 }
//	  - restart: true
//	assertions:
//	  - type: chain_valid
//	  - type: layout
//	    layout: [[a, b], [c, d]]
//
// Entity timestamps are millisecond offsets from 2024-03-01T12:00:00Z.
// crash_at counts repository mutations from the start of the run (1-based);
// the crashed mutation and every later one fail until the next restart.
//
// # Assertion Types
//
//   - chain_valid: the chain verifier reports no violations
//   - layout: content ids per page in chain order
//   - page_count: number of stored pages
//   - unassigned_count: number of entities not attached to a page
//   - journal_empty: no interrupted commit is pending
//   - journal_pending: an interrupted commit is pending
//   - latest_generation: generation of the latest page
package harness
