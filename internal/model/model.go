// Package model defines shared data structures for the ingestion pipeline.
package model

import "time"

// SourceKind identifies which adapter handles a configured source.
type SourceKind string

const (
	KindRSS             SourceKind = "rss"
	KindKEV             SourceKind = "kev"
	KindThreatFox       SourceKind = "threatfox"
	KindThreatFoxExport SourceKind = "threatfox-export"
)

// IOCType is the fixed indicator type enumeration. Unknown source tags
// classify to IOCOther rather than being rejected.
type IOCType string

const (
	IOCIP     IOCType = "ip"
	IOCDomain IOCType = "domain"
	IOCURL    IOCType = "url"
	IOCSHA256 IOCType = "sha256"
	IOCSHA1   IOCType = "sha1"
	IOCMD5    IOCType = "md5"
	IOCEmail  IOCType = "email"
	IOCOther  IOCType = "other"
)

// KnownIOCType reports whether t is one of the enumerated concrete types
// (everything except "other" and unrecognized values).
func KnownIOCType(t IOCType) bool {
	switch t {
	case IOCIP, IOCDomain, IOCURL, IOCSHA256, IOCSHA1, IOCMD5, IOCEmail:
		return true
	}
	return false
}

// Source is a configured feed to ingest.
type Source struct {
	ID                  int64
	Name                string
	Kind                SourceKind
	Endpoint            string
	Enabled             bool
	AuthSecret          string // optional provider credential
	PollIntervalSeconds int
	LastETag            string     // incremental-fetch cursor
	LastModified        *time.Time // nullable
}

// CandidateIOC is an indicator extracted by an adapter, not yet persisted.
type CandidateIOC struct {
	Type    IOCType
	Value   string
	Context map[string]any
}

// Candidate is an adapter's normalized output, not yet persisted.
type Candidate struct {
	CanonicalURL string
	Title        string
	PublishedAt  *time.Time // nullable, many sources omit it
	Author       string
	Raw          map[string]any // opaque source-native provenance payload
	Text         string
	SummaryShort string // reserved for future enrichment
	IOCs         []CandidateIOC
}

// Item is the persisted unit. Immutable once inserted.
type Item struct {
	ID           int64
	SourceID     int64
	CanonicalURL string
	Title        string
	PublishedAt  *time.Time
	FetchedAt    time.Time
	Author       string
	Raw          map[string]any
	Text         string
	HashSHA256   []byte // 32-byte content fingerprint, unique across items
	SummaryShort string
	Lang         string
}

// IOC is a persisted indicator of compromise, owned by its Item.
type IOC struct {
	ID      int64
	ItemID  int64
	Type    IOCType
	Value   string
	Context map[string]any
}

// ItemSummary is the listing read shape.
type ItemSummary struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	CanonicalURL string     `json:"canonical_url"`
	PublishedAt  *time.Time `json:"published_at"`
	SourceName   string     `json:"source"`
	SummaryShort string     `json:"summary_short,omitempty"`
}

// ItemDetail is an Item joined with its source name and IOC rows.
type ItemDetail struct {
	Item
	SourceName string
	IOCs       []IOC
}
