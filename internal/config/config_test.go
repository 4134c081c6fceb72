package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8000" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.BackfillChunkSize != 500 {
		t.Errorf("chunk size: got %d", cfg.BackfillChunkSize)
	}
	if cfg.ThreatFoxDays != 3 {
		t.Errorf("days: got %d", cfg.ThreatFoxDays)
	}
	if len(cfg.Sources) == 0 {
		t.Error("default sources missing")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen_addr: "127.0.0.1:9999"
database_url: "postgres://u:p@localhost/tip"
threatfox_days: 5
sources:
  - name: "ThreatFox"
    kind: "threatfox"
    endpoint: "https://threatfox-api.abuse.ch/api/v1/"
    auth_secret: "key"
    poll_interval_seconds: 900
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.ThreatFoxDays != 5 {
		t.Errorf("days: got %d", cfg.ThreatFoxDays)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].AuthSecret != "key" {
		t.Errorf("sources: %+v", cfg.Sources)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSeed_IdempotentAndCursorPreserving(t *testing.T) {
	// WHAT: Seeding twice creates each source once and leaves cursor
	// state from earlier runs untouched.
	// WHY: Seeding runs on every startup; it must never reset a cursor.
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	cfg := &Config{Sources: []SourceConfig{
		{Name: "The DFIR Report", Kind: "rss", Endpoint: "https://thedfirreport.com/feed/", IntervalSeconds: 900},
	}}
	cfg.defaults()

	if err := Seed(db, cfg); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	src, err := db.GetSourceByName("The DFIR Report")
	if err != nil || src == nil {
		t.Fatalf("get source: %v", err)
	}
	if err := db.UpdateSourceCursor(src.ID, `"etag"`, nil); err != nil {
		t.Fatalf("set cursor: %v", err)
	}

	if err := Seed(db, cfg); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	again, _ := db.GetSourceByName("The DFIR Report")
	if again.ID != src.ID {
		t.Errorf("source recreated: %d vs %d", again.ID, src.ID)
	}
	if again.LastETag != `"etag"` {
		t.Errorf("cursor reset: got %q", again.LastETag)
	}
}

func TestPollInterval(t *testing.T) {
	cfg := &Config{}
	cfg.defaults()
	if cfg.PollInterval(model.KindKEV).Seconds() != 3600 {
		t.Errorf("kev interval: %v", cfg.PollInterval(model.KindKEV))
	}
	if cfg.PollInterval(model.KindRSS).Seconds() != 900 {
		t.Errorf("rss interval: %v", cfg.PollInterval(model.KindRSS))
	}
}
