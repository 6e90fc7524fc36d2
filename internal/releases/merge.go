// Package releases owns the rules for deciding the "latest known
// release" of a media item: the per-medium source priority chains, the
// monotone guess merging and the persistence of chapter guesses.
package releases

// MergeAuthoritative merges a freshly reported authoritative release
// count against the stored one. The report wins, with two guards:
//   - a nil report (service has no data) keeps the stored value, and
//   - a reported zero never overwrites an existing non-zero value; it
//     may only populate an absent one. This protects against transient
//     upstream zero-count bugs.
func MergeAuthoritative(existing *int, reported *int) *int {
	if reported == nil {
		return existing
	}
	if *reported == 0 && existing != nil && *existing != 0 {
		return existing
	}

	return reported
}

// MergeGuess merges an old chapter guess with a newly computed one
// under a total order where absent < any value and larger wins. A
// stored guess therefore never decreases.
func MergeGuess(old *int, fresh *int) *int {
	if fresh == nil {
		return old
	}
	if old == nil || *fresh > *old {
		return fresh
	}

	return old
}
