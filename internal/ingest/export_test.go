package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// exportArchive builds an in-memory ZIP whose single member is a JSON
// array of the given entries.
func exportArchive(t *testing.T, entries []map[string]any) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	member, err := zw.Create("full.json")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := json.NewEncoder(member).Encode(entries); err != nil {
		t.Fatalf("encode entries: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func exportServer(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExportReader_StreamsNormalizedIOCs(t *testing.T) {
	// WHAT: The reader yields one normalized indicator at a time and
	// skips valueless entries.
	// WHY: Bulk exports must never be materialized whole in memory.
	archive := exportArchive(t, []map[string]any{
		{"ioc": "EVIL.example", "ioc_type": "domain", "malware": "quakbot"},
		{"ioc_type": "domain"}, // no value: skipped
		{"ioc": "203.0.113.9:8080", "ioc_type": "ip:port"},
		{"ioc": "d41d8cd98f00b204e9800998ecf8427e", "ioc_type": "filehash-md5"},
	})
	srv := exportServer(t, archive)

	r, err := OpenExport(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer r.Close()

	var got []model.CandidateIOC
	for {
		ioc, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, ioc)
	}

	if len(got) != 3 {
		t.Fatalf("got %d iocs, want 3", len(got))
	}
	if got[0].Type != model.IOCDomain || got[0].Value != "evil.example" {
		t.Errorf("first: %+v", got[0])
	}
	if got[1].Value != "203.0.113.9" || got[1].Context["port"] != "8080" {
		t.Errorf("ip:port: %+v", got[1])
	}
	if got[2].Type != model.IOCMD5 {
		t.Errorf("md5: %+v", got[2])
	}
}

func TestExportReader_LargeExportStaysLazy(t *testing.T) {
	// WHAT: A multi-thousand-entry export iterates without error.
	// WHY: The decoder must pull entries incrementally from the archive.
	entries := make([]map[string]any, 5000)
	for i := range entries {
		entries[i] = map[string]any{
			"ioc":      fmt.Sprintf("198.51.100.%d:%d", i%250, 1000+i),
			"ioc_type": "ip:port",
		}
	}
	srv := exportServer(t, exportArchive(t, entries))

	r, err := OpenExport(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next at %d: %v", count, err)
		}
		count++
	}
	if count != 5000 {
		t.Errorf("got %d iocs, want 5000", count)
	}
}

func TestOpenExport_NotAnArchive(t *testing.T) {
	srv := exportServer(t, []byte("this is not a zip"))
	if _, err := OpenExport(context.Background(), srv.URL); err == nil {
		t.Error("expected error for a non-archive body")
	}
}
