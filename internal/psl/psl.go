// Package psl implements the Public Suffix classifier (C1): mapping a DNS
// name to its registrable eTLD+1 base domain per the Mozilla Public Suffix
// List rules.
package psl

import "golang.org/x/net/publicsuffix"

// Classifier is a read-only value initialized once at process start and
// shared freely across workers. It carries no mutable state, unlike the
// module-level PSL instance §9 flags in the original source.
type Classifier struct{}

// New returns a Classifier backed by the PSL snapshot embedded in
// golang.org/x/net/publicsuffix. The snapshot is a build input, not fetched
// at runtime.
func New() Classifier {
	return Classifier{}
}

// BaseOf returns the registrable base domain for name, or "" if the public
// suffix list has no opinion (single-label names, bare TLDs). IP literals
// are not recognized: they are classified like any other dotted name.
// Wildcard names are classified on the suffix after the leading wildcard
// label, per §4.1.
func (Classifier) BaseOf(name string) string {
	lookup := name
	if len(lookup) > 2 && lookup[0] == '*' && lookup[1] == '.' {
		lookup = lookup[2:]
	}
	if lookup == "" {
		return ""
	}

	base, err := publicsuffix.EffectiveTLDPlusOne(lookup)
	if err != nil {
		// Bare TLDs and single-label names (localhost) land here: the PSL
		// has no registrable suffix to offer.
		return ""
	}
	return base
}
