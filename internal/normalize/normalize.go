// Package normalize provides shared field normalization helpers:
// timestamp parsing across the date encodings our providers emit,
// IOC type classification, and HTML-to-text extraction.
package normalize

import (
	"strings"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// timeLayouts are tried in order. Layouts without a zone are interpreted
// as UTC (time.Parse assigns UTC when the layout carries no zone), which
// matches the naive "YYYY-MM-DD HH:MM:SS" timestamps ThreatFox emits.
var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a provider timestamp. Unparsable or empty input
// yields nil: "published_at unknown" is a valid state, not an error.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ClassifyIOCType maps a source-native indicator type tag to the fixed
// enumeration. Matching is case-insensitive; unrecognized tags map to
// "other" so unknown future tag values do not break ingestion.
func ClassifyIOCType(tag string) model.IOCType {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "url":
		return model.IOCURL
	case "domain", "fqdn":
		return model.IOCDomain
	case "sha256", "filehash-sha256":
		return model.IOCSHA256
	case "sha1", "filehash-sha1":
		return model.IOCSHA1
	case "md5", "filehash-md5":
		return model.IOCMD5
	case "ip", "ip:port", "ipv4", "ipv6":
		return model.IOCIP
	case "email":
		return model.IOCEmail
	}
	return model.IOCOther
}

// NormalizeIOC classifies a raw indicator and normalizes its value:
// "ip:port" encodings are split (the port moves into ctx under "port"),
// and domain values are lowercased so equivalent domains compare equal.
// ctx may be nil; a map is allocated when a port must be recorded.
// ok is false when the value is empty, in which case the indicator
// should be dropped.
func NormalizeIOC(rawType, rawValue string, ctx map[string]any) (typ model.IOCType, value string, outCtx map[string]any, ok bool) {
	value = strings.TrimSpace(rawValue)
	if value == "" {
		return model.IOCOther, "", ctx, false
	}
	typ = ClassifyIOCType(rawType)

	if strings.EqualFold(strings.TrimSpace(rawType), "ip:port") {
		if i := strings.LastIndex(value, ":"); i > 0 {
			if ctx == nil {
				ctx = make(map[string]any)
			}
			ctx["port"] = value[i+1:]
			value = value[:i]
		}
	}
	if typ == model.IOCDomain {
		value = strings.ToLower(value)
	}
	return typ, value, ctx, true
}

// FirstString returns the first non-empty string among the given keys in
// m, for providers that interleave field variants (first_seen vs
// first_seen_utc). Ordered preference, not attribute probing.
func FirstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
