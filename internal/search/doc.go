// Package search ranks catalog flights against a query.
//
// A search is a single pass over a catalog stream: every record is parsed,
// filtered, scored and offered to a bounded top-K selector. Only the K best
// candidates seen so far are ever held in memory, so the catalog can be far
// larger than what fits in RAM.
package search
