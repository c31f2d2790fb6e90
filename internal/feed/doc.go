// Package feed defines the data model of a paginated replication feed.
//
// A feed is an append-only log of entities published as a doubly-linked
// chain of pages. Writers append entities without a page; the producer
// periodically folds those entities into the chain (see internal/producer).
//
// # Records
//
//   - PageMetadata: one page of the chain (prev/next links, totals, generation)
//   - PageAssignment: an entity's placement record (timestamp, length, page)
//   - JournalState: the single in-flight commit descriptor
//
// # Ordering
//
// Entities are always ordered by (LastModified, ContentID) ascending. Every
// repository read that returns more than one PageAssignment MUST use that
// ordering; the producer treats any other order as a contract violation.
//
// # Latest page
//
// A page without a Next link is a latest-page candidate. Outside of an
// interrupted commit there is exactly one. When several exist, the one with
// the lowest Generation is the last fully committed tail (see SelectLatest).
package feed
