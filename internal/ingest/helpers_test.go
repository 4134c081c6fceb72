package ingest

import (
	"testing"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

func sourceFor(url string) model.Source {
	return model.Source{
		ID:       1,
		Name:     "test-source",
		Kind:     model.KindRSS,
		Endpoint: url,
		Enabled:  true,
	}
}

func openTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestSource(t *testing.T, db *database.DB, name string, kind model.SourceKind, endpoint string) int64 {
	t.Helper()
	id, err := db.CreateSource(&model.Source{
		Name: name, Kind: kind, Endpoint: endpoint, Enabled: true, PollIntervalSeconds: 900,
	})
	if err != nil {
		t.Fatalf("create source %s: %v", name, err)
	}
	return id
}
