package ingest

import (
	"crypto/sha256"
	"log/slog"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/metrics"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// DefaultLang is the language tag assigned to persisted items.
const DefaultLang = "en"

// Fingerprint computes the content-addressed dedup key: a SHA-256
// digest over title + canonical URL, with empty strings substituted for
// absent fields. It is the sole dedup key: two fetches producing the
// same (title, url) pair are the same document even if their indicator
// sets differ.
func Fingerprint(title, canonicalURL string) []byte {
	h := sha256.Sum256([]byte(title + canonicalURL))
	return h[:]
}

// Upserter deduplicates candidates and persists them with their
// indicator rows.
type Upserter struct {
	store database.Store
	now   func() time.Time
}

// NewUpserter creates a persistence engine over the given store.
func NewUpserter(store database.Store) *Upserter {
	return &Upserter{store: store, now: time.Now}
}

// UpsertCandidates persists each new candidate as an Item plus its IOC
// rows in one transaction, skipping candidates whose fingerprint
// already exists. The unit of atomicity is one candidate: a failure
// does not roll back previously committed siblings. Returns the number
// of items inserted.
func (u *Upserter) UpsertCandidates(candidates []model.Candidate, sourceID int64, kind model.SourceKind) int {
	inserted := 0
	for _, c := range candidates {
		hash := Fingerprint(c.Title, c.CanonicalURL)

		exists, err := u.store.HasItemHash(hash)
		if err != nil {
			slog.Error("dedup check failed", "title", c.Title, "err", err)
			continue
		}
		if exists {
			metrics.ItemsDuplicate.WithLabelValues(string(kind)).Inc()
			continue
		}

		iocs := validIOCs(c.IOCs)
		item := &model.Item{
			SourceID:     sourceID,
			CanonicalURL: c.CanonicalURL,
			Title:        c.Title,
			PublishedAt:  c.PublishedAt,
			FetchedAt:    u.now().UTC(),
			Author:       c.Author,
			Raw:          c.Raw,
			Text:         c.Text,
			HashSHA256:   hash,
			SummaryShort: c.SummaryShort,
			Lang:         DefaultLang,
		}
		_, ok, err := u.store.InsertItemWithIOCs(item, iocs)
		if err != nil {
			slog.Error("insert failed", "title", c.Title, "err", err)
			continue
		}
		if !ok {
			// A concurrent poller won the fingerprint race; the store's
			// uniqueness constraint already rejected us, same as a dup.
			metrics.ItemsDuplicate.WithLabelValues(string(kind)).Inc()
			continue
		}
		inserted++
		metrics.ItemsInserted.WithLabelValues(string(kind)).Inc()
		metrics.IOCsStored.Add(float64(len(iocs)))
	}
	return inserted
}

// validIOCs drops malformed indicators (no value) so a bad sibling
// never aborts insertion of the rest or of the parent item.
func validIOCs(iocs []model.CandidateIOC) []model.CandidateIOC {
	out := iocs[:0:0]
	for _, ioc := range iocs {
		if ioc.Value == "" {
			continue
		}
		out = append(out, ioc)
	}
	return out
}
