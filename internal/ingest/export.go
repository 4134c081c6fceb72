package ingest

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/normalize"
)

// ExportFullURL is the default ThreatFox full-export endpoint: a ZIP
// archive containing one large JSON array of indicators.
const ExportFullURL = "https://threatfox.abuse.ch/export/json/full/"

// IOCIterator yields normalized indicators one at a time. Next returns
// io.EOF when the sequence is exhausted.
type IOCIterator interface {
	Next() (model.CandidateIOC, error)
	Close() error
}

// ExportReader streams a bulk IOC export without materializing it: the
// archive is downloaded to a temp file (never buffered whole in
// memory), then its single JSON array member is decoded incrementally.
type ExportReader struct {
	tmp    *os.File
	member io.ReadCloser
	dec    *json.Decoder
}

var _ IOCIterator = (*ExportReader)(nil)

// OpenExport downloads the export archive and positions the decoder at
// the start of the indicator array. The caller's context bounds the
// download; pass a deadline of minutes, not seconds.
func OpenExport(ctx context.Context, endpoint string) (*ExportReader, error) {
	if endpoint == "" {
		endpoint = ExportFullURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download export %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download export %s: status %d", endpoint, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "ioc-export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		cleanupTemp(tmp)
		return nil, fmt.Errorf("spool export: %w", err)
	}

	r, err := newExportReader(tmp)
	if err != nil {
		cleanupTemp(tmp)
		return nil, err
	}
	return r, nil
}

// newExportReader opens the first archive member of a spooled export
// and consumes the opening array token.
func newExportReader(tmp *os.File) (*ExportReader, error) {
	info, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	zr, err := zip.NewReader(tmp, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, errors.New("export archive is empty")
	}
	member, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open archive member %s: %w", zr.File[0].Name, err)
	}

	dec := json.NewDecoder(member)
	tok, err := dec.Token()
	if err != nil {
		member.Close()
		return nil, fmt.Errorf("read export: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		member.Close()
		return nil, fmt.Errorf("read export: expected JSON array, got %v", tok)
	}

	return &ExportReader{tmp: tmp, member: member, dec: dec}, nil
}

// Next decodes the next indicator. Entries without a value are skipped;
// a single undecodable entry aborts the stream (the archive is corrupt
// past that point).
func (r *ExportReader) Next() (model.CandidateIOC, error) {
	for r.dec.More() {
		var obj map[string]any
		if err := r.dec.Decode(&obj); err != nil {
			return model.CandidateIOC{}, fmt.Errorf("decode export entry: %w", err)
		}
		typ, value, ctx, ok := normalize.NormalizeIOC(getString(obj, "ioc_type"), getString(obj, "ioc"), exportContext(obj))
		if !ok {
			continue
		}
		return model.CandidateIOC{Type: typ, Value: value, Context: ctx}, nil
	}
	return model.CandidateIOC{}, io.EOF
}

// Close releases the archive member and removes the temp file.
func (r *ExportReader) Close() error {
	if r.member != nil {
		r.member.Close()
	}
	cleanupTemp(r.tmp)
	return nil
}

func cleanupTemp(tmp *os.File) {
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)
}

func exportContext(d map[string]any) map[string]any {
	return map[string]any{
		"threat_type":       d["threat_type"],
		"threat_type_desc":  d["threat_type_desc"],
		"malware":           d["malware"],
		"malware_printable": d["malware_printable"],
		"malware_alias":     d["malware_alias"],
		"malpedia":          d["malware_malpedia"],
		"confidence":        d["confidence_level"],
		"first_seen":        normalize.FirstString(d, "first_seen", "first_seen_utc"),
		"last_seen":         normalize.FirstString(d, "last_seen", "last_seen_utc"),
		"reporter":          d["reporter"],
		"reference":         d["reference"],
		"tags":              d["tags"],
		"ioc_id":            d["id"],
	}
}
