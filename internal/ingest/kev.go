package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/normalize"
)

// KEVCatalogFallbackURL is used as an item's canonical URL when a
// catalog entry carries no per-CVE URL of its own.
const KEVCatalogFallbackURL = "https://www.cisa.gov/known-exploited-vulnerabilities-catalog"

// KEVAdapter ingests the CISA Known Exploited Vulnerabilities catalog:
// a single JSON document with a "vulnerabilities" list.
type KEVAdapter struct {
	client *http.Client
}

// NewKEVAdapter creates a vulnerability-catalog adapter.
func NewKEVAdapter() *KEVAdapter {
	return &KEVAdapter{client: newHTTPClient(60 * time.Second)}
}

// Kind returns the source kind this adapter handles.
func (a *KEVAdapter) Kind() model.SourceKind { return model.KindKEV }

// Fetch downloads the catalog and builds one candidate per entry.
func (a *KEVAdapter) Fetch(ctx context.Context, src model.Source) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", src.Endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", src.Endpoint, resp.StatusCode)
	}

	// Entries are kept schema-less and stored whole in Raw.
	var catalog struct {
		Vulnerabilities []map[string]any `json:"vulnerabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", src.Endpoint, err)
	}

	result := &FetchResult{}
	for _, v := range catalog.Vulnerabilities {
		result.Candidates = append(result.Candidates, normalizeKEVEntry(v))
	}
	return result, nil
}

func normalizeKEVEntry(v map[string]any) model.Candidate {
	title := strings.TrimSpace(fmt.Sprintf("%s: %s %s",
		getString(v, "cveID"), getString(v, "vendorProject"), getString(v, "product")))

	url := getString(v, "cveURL")
	if url == "" {
		url = KEVCatalogFallbackURL
	}

	return model.Candidate{
		CanonicalURL: url,
		Title:        title,
		PublishedAt:  normalize.ParseTime(getString(v, "dateAdded")),
		Author:       "CISA",
		Raw:          v,
		Text:         strings.TrimSpace(getString(v, "shortDescription")),
	}
}

// getString reads a string field from a schema-less payload, degrading
// missing or non-string values to "".
func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
