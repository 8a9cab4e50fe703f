package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"plcaudit/internal/logging"
)

func hashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ExportJSON writes one JSON file per shard into dir, for inspecting
// what the dispatcher would send.
func ExportJSON(shards []*Shard, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create shard export directory: %w", err)
	}
	for _, s := range shards {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal shard %s: %w", s.ID, err)
		}
		path := filepath.Join(dir, s.ID+".json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write shard %s: %w", s.ID, err)
		}
	}
	logging.Shard("exported %d shards to %s", len(shards), dir)
	return nil
}
