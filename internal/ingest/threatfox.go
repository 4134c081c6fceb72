package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/normalize"
)

// ThreatFox recommends get_iocs windows of 1-7 days; larger windows
// are clamped to keep result sets bounded.
const (
	threatFoxMinDays = 1
	threatFoxMaxDays = 7
)

// ThreatFoxBatchURL is the canonical URL recorded on batch items.
const ThreatFoxBatchURL = "https://threatfox.abuse.ch/"

// ThreatFoxAdapter ingests recent IOCs from the ThreatFox API. The
// provider returns one unstructured response per poll, so the adapter
// emits a single synthetic candidate carrying the whole indicator list,
// deduplicated within the fetch by (type, value).
type ThreatFoxAdapter struct {
	client *http.Client
	// Days is the recent-IOC query window, clamped to 1-7.
	Days int
}

// NewThreatFoxAdapter creates an incremental IOC-feed adapter with the
// given query window in days.
func NewThreatFoxAdapter(days int) *ThreatFoxAdapter {
	return &ThreatFoxAdapter{
		client: newHTTPClient(60 * time.Second),
		Days:   days,
	}
}

// Kind returns the source kind this adapter handles.
func (a *ThreatFoxAdapter) Kind() model.SourceKind { return model.KindThreatFox }

type threatFoxResponse struct {
	QueryStatus string           `json:"query_status"`
	Data        []map[string]any `json:"data"`
}

// Fetch queries recent IOCs. On an explicit "nok" from the provider it
// retries once without the credential (tolerating a revoked key); a
// second failure yields an empty result rather than an error, since
// there is nothing transport-level to retry.
func (a *ThreatFoxAdapter) Fetch(ctx context.Context, src model.Source) (*FetchResult, error) {
	days := a.Days
	if days < threatFoxMinDays {
		days = threatFoxMinDays
	}
	if days > threatFoxMaxDays {
		days = threatFoxMaxDays
	}

	resp, err := a.query(ctx, src.Endpoint, days, src.AuthSecret)
	if err != nil {
		return nil, err
	}
	if resp.QueryStatus == "nok" {
		if src.AuthSecret == "" {
			return &FetchResult{}, nil
		}
		resp, err = a.query(ctx, src.Endpoint, days, "")
		if err != nil {
			return nil, err
		}
		if resp.QueryStatus == "nok" {
			return &FetchResult{}, nil
		}
	}

	iocs, lastSeenMax := normalizeThreatFoxBatch(resp.Data)
	if len(iocs) == 0 {
		return &FetchResult{}, nil
	}

	published := lastSeenMax
	if published == nil {
		now := time.Now().UTC()
		published = &now
	}

	return &FetchResult{Candidates: []model.Candidate{{
		CanonicalURL: ThreatFoxBatchURL,
		Title:        fmt.Sprintf("ThreatFox last %d day(s) (%d IOCs)", days, len(iocs)),
		PublishedAt:  published,
		Author:       "abuse.ch ThreatFox",
		Raw: map[string]any{
			"count":       len(iocs),
			"query":       "get_iocs",
			"window_days": days,
		},
		Text: "Recent IOCs from ThreatFox (abuse.ch).",
		IOCs: iocs,
	}}}, nil
}

func (a *ThreatFoxAdapter) query(ctx context.Context, endpoint string, days int, authKey string) (*threatFoxResponse, error) {
	payload := map[string]any{"query": "get_iocs", "days": days}
	if authKey != "" {
		// Header and body for compatibility across API revisions.
		payload["auth_key"] = authKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if authKey != "" {
		req.Header.Set("Auth-Key", authKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("query %s: status %d", endpoint, resp.StatusCode)
	}

	var out threatFoxResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return &out, nil
}

// normalizeThreatFoxBatch normalizes a data list into candidate IOCs,
// deduplicated by (type, value). A malformed entry degrades or is
// dropped without discarding the rest of the batch. The second return
// is the maximum parsed last-seen timestamp, or nil.
func normalizeThreatFoxBatch(data []map[string]any) ([]model.CandidateIOC, *time.Time) {
	var iocs []model.CandidateIOC
	var lastSeenMax *time.Time
	seen := make(map[string]struct{})

	for _, d := range data {
		typ, value, ctx, ok := normalize.NormalizeIOC(getString(d, "ioc_type"), getString(d, "ioc"), threatFoxContext(d))
		if !ok {
			continue
		}
		key := string(typ) + "\x00" + value
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if ls, _ := ctx["last_seen"].(string); ls != "" {
			if t := normalize.ParseTime(ls); t != nil && (lastSeenMax == nil || t.After(*lastSeenMax)) {
				lastSeenMax = t
			}
		}
		iocs = append(iocs, model.CandidateIOC{Type: typ, Value: value, Context: ctx})
	}
	return iocs, lastSeenMax
}

// threatFoxContext collects as much per-indicator metadata as the entry
// carries. Field variants (first_seen vs first_seen_utc) resolve by
// ordered preference.
func threatFoxContext(d map[string]any) map[string]any {
	ctx := map[string]any{
		"threat_type":       d["threat_type"],
		"malware":           d["malware"],
		"malware_printable": d["malware_printable"],
		"tags":              d["tags"],
		"confidence":        d["confidence_level"],
		"reference":         d["reference"],
		"first_seen":        normalize.FirstString(d, "first_seen", "first_seen_utc"),
		"last_seen":         normalize.FirstString(d, "last_seen", "last_seen_utc"),
		"reporter":          d["reporter"],
		"tlp":               d["tlp"],
		"anonymous":         d["anonymous"],
	}
	if id := firstNonNil(d, "id", "ioc_id"); id != nil {
		ctx["id"] = id
	}
	return ctx
}

func firstNonNil(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
