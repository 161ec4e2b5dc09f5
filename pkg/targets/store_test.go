package targets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "targets.json"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	info, err := store.Lookup(context.Background(), "discord|1")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if info.Muted || info.Locale != "" || info.TimezoneOffset != 0 {
		t.Fatalf("info = %+v, want zero value", info)
	}
}

func TestLookupAndEnabledFor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	content := `{"targets": {
	  "Discord|2": {"modules": ["coin"], "locale": "zh_cn", "timezone_offset_minutes": 480},
	  "discord|1": {"modules": ["coin", "guess"], "muted": true},
	  "telegram|5": {"modules": ["coin"]}
	}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write targets: %v", err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	info, _ := store.Lookup(context.Background(), "DISCORD|2")
	if info.Locale != "zh_cn" || info.TimezoneOffset != 8*time.Hour {
		t.Fatalf("info = %+v", info)
	}

	ids, err := store.EnabledFor(context.Background(), "coin", "discord")
	if err != nil {
		t.Fatalf("EnabledFor error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "discord|1" || ids[1] != "discord|2" {
		t.Fatalf("EnabledFor = %v, want [discord|1 discord|2]", ids)
	}

	ids, _ = store.EnabledFor(context.Background(), "guess", "telegram")
	if len(ids) != 0 {
		t.Fatalf("EnabledFor guess/telegram = %v, want none", ids)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "targets.json")
	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	store.Set("twitch|stream", Entry{Modules: []string{"guess"}, Muted: true})
	if err := store.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	entry, ok := reloaded.Get("twitch|stream")
	if !ok || !entry.Muted || len(entry.Modules) != 1 {
		t.Fatalf("entry = %+v, %v", entry, ok)
	}
}

func TestSaveWithoutPathFails(t *testing.T) {
	store, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if err := store.Save(); err == nil {
		t.Fatal("expected error saving without path")
	}
}
