// Package model holds the data types shared across the ingestion pipeline:
// log descriptors produced once by the registry, the per-log cursor owned
// by the offset store, and the row shape the sink writes.
package model

import "time"

// LogState is the lifecycle state of a CT log as published in the log list.
type LogState int

const (
	// StateUsable logs are actively accepting new submissions.
	StateUsable LogState = iota
	// StateFrozen logs no longer accept submissions but still serve their
	// existing entries; a worker polling a frozen log exits once its
	// cursor reaches the tree size instead of idling forever.
	StateFrozen
)

func (s LogState) String() string {
	if s == StateFrozen {
		return "frozen"
	}
	return "usable"
}

// LogDescriptor is an immutable record produced once by the log registry
// (C4) and shared read-only with every worker.
type LogDescriptor struct {
	// Name is a unique, filesystem-safe derivation of the log's human
	// description: whitespace runs collapsed to a single underscore, path
	// separators stripped.
	Name string
	// URL is scheme+host+base path with any trailing slash stripped.
	URL   string
	State LogState
	// Start and End bound the temporal_interval the log list advertised.
	Start, End time.Time
}

// LeafRecord is the transient result of parsing one Merkle tree leaf. It is
// never retained past the batch iteration that produced it.
type LeafRecord struct {
	CertDER         []byte
	Fingerprint     string // lowercase hex sha256 of CertDER
	IssuerRFC4514   string
	SubjectRFC4514  string
	NotBefore       time.Time
	NotAfter        time.Time
	Names           []string // lowercase, deduplicated, wildcard-preserving
}

// DomainRow is a single (certificate, name) pair as written to the sink.
// A certificate with N names produces N rows sharing Fingerprint.
type DomainRow struct {
	TS          time.Time
	Domain      string
	BaseDomain  string // empty string when the classifier returns none
	Fingerprint string
	Issuer      string
	Subject     string
	SAN         []string
	NotBefore   time.Time
	NotAfter    time.Time
	LogName     string
}

// SinkColumns is the ordered column list every insert into the column store
// must use, per the engine's explicit-column-list policy.
var SinkColumns = []string{
	"ts", "domain", "base_domain", "fingerprint", "issuer", "subject",
	"san", "not_before", "not_after", "log_name",
}
