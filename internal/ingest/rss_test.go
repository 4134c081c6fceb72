package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
<title>The DFIR Report</title>
<item>
  <title>Intrusion writeup</title>
  <link>https://example.com/report/1</link>
  <guid>https://example.com/report/1</guid>
  <pubDate>Mon, 04 Mar 2024 09:00:00 +0000</pubDate>
  <description>Short excerpt</description>
  <content:encoded><![CDATA[<p>Full <b>content</b> body.</p><p>Second block.</p>]]></content:encoded>
</item>
<item>
  <title>No content item</title>
  <link>https://example.com/report/2</link>
  <guid>https://example.com/report/2</guid>
  <description><![CDATA[<p>Only the excerpt.</p>]]></description>
</item>
</channel>
</rss>`

func rssTestServer(t *testing.T, etag string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSSAdapter_Fetch(t *testing.T) {
	// WHAT: A normal fetch yields normalized candidates and the fresh ETag.
	// WHY: Inline full content must beat the excerpt, and HTML must become text.
	srv := rssTestServer(t, `"v1"`)
	a := NewRSSAdapter()

	res, err := a.Fetch(context.Background(), sourceFor(srv.URL))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.NewETag != `"v1"` {
		t.Errorf("etag: got %q", res.NewETag)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}

	c := res.Candidates[0]
	if c.Title != "Intrusion writeup" {
		t.Errorf("title: got %q", c.Title)
	}
	if c.CanonicalURL != "https://example.com/report/1" {
		t.Errorf("url: got %q", c.CanonicalURL)
	}
	if c.Text != "Full content body.\nSecond block." {
		t.Errorf("text: got %q", c.Text)
	}
	want := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if c.PublishedAt == nil || !c.PublishedAt.Equal(want) {
		t.Errorf("published: got %v", c.PublishedAt)
	}

	if got := res.Candidates[1].Text; got != "Only the excerpt." {
		t.Errorf("excerpt fallback: got %q", got)
	}
}

func TestRSSAdapter_NotModified(t *testing.T) {
	// WHAT: A 304 yields zero candidates and no new cursor token.
	// WHY: The source's cursor must stay untouched on "not modified".
	srv := rssTestServer(t, `"v1"`)
	a := NewRSSAdapter()

	src := sourceFor(srv.URL)
	src.LastETag = `"v1"`
	res, err := a.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(res.Candidates))
	}
	if res.NewETag != "" {
		t.Errorf("etag should be empty on 304, got %q", res.NewETag)
	}
}

func TestRSSAdapter_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewRSSAdapter()
	if _, err := a.Fetch(context.Background(), sourceFor(srv.URL)); err == nil {
		t.Error("expected error on 500 response")
	}
}
