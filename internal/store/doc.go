// Package store provides SQLite-backed repositories for a feed producer.
//
// A single Store implements feed.EntityRepository,
// feed.PageMetadataRepository and feed.JournalRepository on top of three
// tables:
//   - entities: appended entities and their page placement
//   - pages: page metadata (prev/next links, totals, generation)
//   - journal: the single in-flight commit descriptor (one row at most)
//
// # Ordering
//
// Every query returning entities uses
// ORDER BY last_modified ASC, content_id COLLATE BINARY ASC, the ordering the
// producer relies on to trim pages during rollback.
//
// # Atomicity
//
// Multi-row writes (SavePageAssignments, Save, Delete, Append) run in one
// transaction, so each call is applied entirely or not at all.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers while the producer writes
//   - synchronous=FULL: a returned write survives power loss
//   - busy_timeout=5000: writers from other processes wait for the lock
//
// Schema upgrades are tracked in PRAGMA user_version.
package store
