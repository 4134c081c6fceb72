package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testCatalog = `{
  "title": "CISA Catalog of Known Exploited Vulnerabilities",
  "vulnerabilities": [
    {
      "cveID": "CVE-2024-1",
      "vendorProject": "Acme",
      "product": "Widget",
      "shortDescription": "Acme Widget allows remote code execution.",
      "dateAdded": "2024-01-05T00:00:00Z"
    },
    {
      "cveID": "CVE-2024-2",
      "vendorProject": "Other",
      "product": "Thing",
      "cveURL": "https://example.com/cve-2024-2",
      "dateAdded": "not-a-date"
    }
  ]
}`

func TestKEVAdapter_Fetch(t *testing.T) {
	// WHAT: Catalog entries become candidates with synthesized titles.
	// WHY: The catalog has no per-entry title; "{id}: {vendor} {product}" is the contract.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testCatalog))
	}))
	defer srv.Close()

	a := NewKEVAdapter()
	res, err := a.Fetch(context.Background(), sourceFor(srv.URL))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}

	c := res.Candidates[0]
	if c.Title != "CVE-2024-1: Acme Widget" {
		t.Errorf("title: got %q", c.Title)
	}
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if c.PublishedAt == nil || !c.PublishedAt.Equal(want) {
		t.Errorf("published: got %v", c.PublishedAt)
	}
	if c.CanonicalURL != KEVCatalogFallbackURL {
		t.Errorf("fallback url: got %q", c.CanonicalURL)
	}
	if c.Author != "CISA" {
		t.Errorf("author: got %q", c.Author)
	}
	if c.Text != "Acme Widget allows remote code execution." {
		t.Errorf("text: got %q", c.Text)
	}

	// Second entry: its own URL wins, bad date degrades to nil.
	c2 := res.Candidates[1]
	if c2.CanonicalURL != "https://example.com/cve-2024-2" {
		t.Errorf("cveURL: got %q", c2.CanonicalURL)
	}
	if c2.PublishedAt != nil {
		t.Errorf("published should be nil for bad date, got %v", c2.PublishedAt)
	}
}

func TestKEVAdapter_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	a := NewKEVAdapter()
	if _, err := a.Fetch(context.Background(), sourceFor(srv.URL)); err == nil {
		t.Error("expected error on malformed body")
	}
}
