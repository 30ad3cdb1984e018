// Package memory implements the retrieval-augmented memory engine:
// hybrid semantic and keyword retrieval over scoped stores, outcome
// recording with privacy screening and deduplication, utility feedback,
// consolidation of recurring learnings into rules, and lazy expiration
// of stale records.
package memory
