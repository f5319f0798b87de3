// Package sources provides the ranking sources the refresh scheduler reads
// player records from.
//
// A RankingSource returns the full, unordered set of raw records on every
// call. Ordering and validation are left to the snapshot builder, so sources
// only translate their storage format into ranking.Record values: a field
// the backend did not provide stays nil.
//
// Supported sources:
//   - postgres: runs a SELECT over a pgx connection pool
//   - file: reads a YAML or JSON players document from disk
//   - api: fetches a JSON players document over HTTP
//   - redis: reads player hashes referenced from an id set
//
// Every failure to reach or read the backend is returned as a
// *ranking.DataAccessError.
package sources
