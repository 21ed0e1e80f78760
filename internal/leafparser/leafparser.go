// Package leafparser decodes RFC 6962 §3.4 MerkleTreeLeaf structures into
// certificates and extracts the DNS names they assert (C2).
package leafparser

import (
	"crypto/sha256"
	"encoding/asn1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	ctx509 "github.com/google/certificate-transparency-go/x509"

	"itko.dev/internal/model"
)

// Reason classifies why a leaf produced no LeafRecord. It is never an error
// in the Go sense — skipping is the documented policy for malformed or
// out-of-scope entries (§4.2, §7).
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonUnsupportedVersion   Reason = "unsupported_version"
	ReasonUnsupportedLeafType  Reason = "unsupported_leaf_type"
	ReasonUnsupportedEntryType Reason = "unsupported_entry_type"
	ReasonPrecert              Reason = "precert_skipped"
	ReasonTruncated            Reason = "truncated_der"
	ReasonMalformedCert        Reason = "malformed_cert"
	ReasonNoNames              Reason = "no_dns_names"
)

const (
	versionV1            = 0
	leafTypeTimestamped  = 0
	entryTypeX509        = 0
	entryTypePrecert     = 1
	issuerKeyHashLen     = 32
	lengthPrefixBytes    = 3 // 24-bit big-endian length prefix
)

var oidCommonName = asn1.ObjectIdentifier{2, 5, 4, 3}

// Verbose gates debug-level skip logging, mirroring the teacher's
// VERBOSE-style conditionals. It defaults to true and is not set from the
// VERBOSE environment variable.
var Verbose = true

// Parse decodes one leaf_input byte sequence (already base64-decoded) into
// a LeafRecord, or reports the reason it was skipped. It never returns a Go
// error: every failure mode named in §4.2 is a skip, not a batch failure.
func Parse(leafInput []byte) (*model.LeafRecord, Reason) {
	if len(leafInput) < 2+8+2 {
		return skip(ReasonTruncated, "leaf shorter than fixed header")
	}

	version := leafInput[0]
	leafType := leafInput[1]
	if version != versionV1 {
		return skip(ReasonUnsupportedVersion, fmt.Sprintf("version=%d", version))
	}
	if leafType != leafTypeTimestamped {
		return skip(ReasonUnsupportedLeafType, fmt.Sprintf("leaf_type=%d", leafType))
	}

	// TimestampedEntry: 8-byte ms-since-epoch timestamp, 2-byte entry type.
	offset := 2
	_ = binary.BigEndian.Uint64(leafInput[offset : offset+8]) // timestamp, unused downstream
	offset += 8
	entryType := binary.BigEndian.Uint16(leafInput[offset : offset+2])
	offset += 2

	switch entryType {
	case entryTypeX509:
		return parseX509Entry(leafInput[offset:])
	case entryTypePrecert:
		// Deliberate coverage gap: the TBSCertificate fragment carried by a
		// precert entry is not a complete DER cert. See SPEC_FULL.md and
		// §9's open question on precert handling.
		return skip(ReasonPrecert, "precert entries are not ingested in this version")
	default:
		return skip(ReasonUnsupportedEntryType, fmt.Sprintf("entry_type=%d", entryType))
	}
}

func parseX509Entry(body []byte) (*model.LeafRecord, Reason) {
	certDER, ok := readLengthPrefixed(body, 0)
	if !ok {
		return skip(ReasonTruncated, "x509 entry length prefix exceeds buffer")
	}
	return buildRecord(certDER)
}

// readLengthPrefixed reads a 24-bit big-endian length prefix starting at
// off and returns the bytes it names, or false if the buffer is too short.
func readLengthPrefixed(buf []byte, off int) ([]byte, bool) {
	if len(buf) < off+lengthPrefixBytes {
		return nil, false
	}
	length := int(buf[off])<<16 | int(buf[off+1])<<8 | int(buf[off+2])
	start := off + lengthPrefixBytes
	end := start + length
	if end > len(buf) {
		return nil, false
	}
	return buf[start:end], true
}

func buildRecord(certDER []byte) (*model.LeafRecord, Reason) {
	cert, err := ctx509.ParseCertificate(certDER)
	if err != nil {
		debugf("skipping invalid DER cert: %v, len=%d", err, len(certDER))
		return skip(ReasonMalformedCert, err.Error())
	}

	names := extractNames(cert)
	if len(names) == 0 {
		return skip(ReasonNoNames, "empty subject and SAN")
	}

	sum := sha256.Sum256(certDER)

	return &model.LeafRecord{
		CertDER:        certDER,
		Fingerprint:    hex.EncodeToString(sum[:]),
		IssuerRFC4514:  cert.Issuer.String(),
		SubjectRFC4514: cert.Subject.String(),
		NotBefore:      cert.NotBefore,
		NotAfter:       cert.NotAfter,
		Names:          names,
	}, ReasonNone
}

// extractNames collects every Common Name RDN in the Subject plus every
// dNSName SAN entry, lowercased, trailing dot stripped, empty and
// NUL-containing names rejected, duplicates collapsed, wildcards preserved
// verbatim (§4.2).
func extractNames(cert *ctx509.Certificate) []string {
	seen := make(map[string]struct{})
	var names []string

	add := func(raw string) {
		n := normalizeName(raw)
		if n == "" {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}

	for _, atv := range cert.Subject.Names {
		if atv.Type.Equal(oidCommonName) {
			if s, ok := atv.Value.(string); ok {
				add(s)
			}
		}
	}
	for _, dnsName := range cert.DNSNames {
		add(dnsName)
	}

	return names
}

func normalizeName(raw string) string {
	n := strings.ToLower(strings.TrimSpace(raw))
	n = strings.TrimSuffix(n, ".")
	if n == "" {
		return ""
	}
	if strings.ContainsRune(n, 0) {
		return ""
	}
	return n
}

func skip(reason Reason, why string) (*model.LeafRecord, Reason) {
	debugf("skip leaf: reason=%s (%s)", reason, why)
	return nil, reason
}

func debugf(format string, args ...any) {
	if Verbose {
		log.Printf("[leafparser] "+format, args...)
	}
}
