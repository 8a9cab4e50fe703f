package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigureAndWrite(t *testing.T) {
	tmp := t.TempDir()
	if err := Configure(tmp, "debug"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer CloseAll()

	Shard("assembled %d shards", 3)
	ShardDebug("candidate closed at line %d", 120)

	entries, err := os.ReadDir(filepath.Join(tmp, "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "shard") {
			found = true
			data, err := os.ReadFile(filepath.Join(tmp, "logs", e.Name()))
			if err != nil {
				t.Fatalf("read log: %v", err)
			}
			if !strings.Contains(string(data), "assembled 3 shards") {
				t.Errorf("info entry missing from log: %s", data)
			}
			if !strings.Contains(string(data), "candidate closed at line 120") {
				t.Errorf("debug entry missing from log: %s", data)
			}
		}
	}
	if !found {
		t.Error("expected a shard category log file")
	}
}

func TestDisabledIsNoop(t *testing.T) {
	CloseAll()
	if err := Configure("", "info"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	// Must not panic or create files.
	Dispatch("batch %d resolved", 1)
	API("request sent")
}

func TestLevelFiltering(t *testing.T) {
	tmp := t.TempDir()
	if err := Configure(tmp, "warn"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryDispatch)
	l.Info("should be filtered")
	l.Warn("should appear")

	entries, _ := os.ReadDir(filepath.Join(tmp, "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "dispatch") {
			data, _ := os.ReadFile(filepath.Join(tmp, "logs", e.Name()))
			if strings.Contains(string(data), "should be filtered") {
				t.Error("info entry written at warn level")
			}
			if !strings.Contains(string(data), "should appear") {
				t.Error("warn entry missing")
			}
		}
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	if err := Configure("", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
